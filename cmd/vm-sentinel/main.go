package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/vm-sentinel/internal/batch"
	"github.com/hochfrequenz/vm-sentinel/internal/config"
	"github.com/hochfrequenz/vm-sentinel/internal/inventory"
	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
	"github.com/hochfrequenz/vm-sentinel/internal/metrics"
	"github.com/hochfrequenz/vm-sentinel/internal/notify"
	"github.com/hochfrequenz/vm-sentinel/internal/oracle"
	"github.com/hochfrequenz/vm-sentinel/internal/vmstore"
)

type rootOptions struct {
	configPath string
	seedPath   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "vm-sentinel",
		Short: "VM Sentinel - bot assignment for virtual machines",
		Long: `VM Sentinel keeps track of which automation bot runs on which VM.
It suggests bots through a scoring oracle, applies assignments per VM
or per process batch, and serves the inventory over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithLocalFallback(opts.configPath)
			if err != nil {
				return err
			}
			if err := configureLogging(cfg.Log); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.seedPath, "seed", "", "inventory YAML to load instead of the configured one")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newListCmd(opts),
		newBotsCmd(opts),
		newProcessesCmd(opts),
		newStatusCmd(opts),
		newSuggestCmd(opts),
		newBatchCmd(opts),
		newTUICmd(opts),
	)
	return rootCmd
}

func configureLogging(cfg config.LogConfig) error {
	level := log.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = log.ParseLevel(cfg.Level); err != nil {
			return errors.Wrap(err, "log.level")
		}
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if cfg.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

// app is the wired engine behind every command
type app struct {
	cfg         *config.Config
	seedPath    string
	store       *vmstore.Store
	metrics     *metrics.Metrics
	notifier    notify.Notifier
	matcher     *matcher.Matcher
	coordinator *batch.Coordinator
}

// newApp builds a fresh in-memory store from the seed inventory and wires
// the oracle, matcher and coordinator around it.
func newApp(opts *rootOptions) (*app, error) {
	cfg := opts.cfg
	if cfg == nil {
		cfg = config.Default()
	}

	store, err := vmstore.New()
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	seed := opts.seedPath
	if seed == "" {
		seed = cfg.General.SeedPath
	}
	inv, err := inventory.Load(seed)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := inv.Apply(store); err != nil {
		store.Close()
		return nil, err
	}

	orc, err := oracle.New(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	mt := metrics.New()
	notifier := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)

	return &app{
		cfg:      cfg,
		seedPath: seed,
		store:    store,
		metrics:  mt,
		notifier: notifier,
		matcher: matcher.New(orc,
			matcher.WithTimeout(time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second),
			matcher.WithMetrics(mt),
		),
		coordinator: batch.NewCoordinator(store,
			batch.WithMetrics(mt),
			batch.WithNotifier(notifier),
		),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
