package vmstore

const schema = `
CREATE TABLE IF NOT EXISTS bots (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vms (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL CHECK (length(trim(name)) > 0),
    process_id TEXT NOT NULL CHECK (length(trim(process_id)) > 0),
    bot_id TEXT,
    status TEXT NOT NULL CHECK (status IN ('Free', 'Assigned')),
    cpu_cores INTEGER NOT NULL CHECK (cpu_cores >= 1),
    memory_gb INTEGER NOT NULL CHECK (memory_gb >= 1),
    storage_gb INTEGER NOT NULL CHECK (storage_gb >= 1),
    network_bandwidth_mbps INTEGER NOT NULL CHECK (network_bandwidth_mbps >= 1),
    CHECK ((status = 'Assigned') = (bot_id IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_vms_process_id ON vms(process_id);
CREATE INDEX IF NOT EXISTS idx_vms_bot_id ON vms(bot_id);
`
