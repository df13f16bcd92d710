package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/inventory"
	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
	"github.com/hochfrequenz/vm-sentinel/internal/view"
	"github.com/hochfrequenz/vm-sentinel/internal/vmstore"
	"github.com/hochfrequenz/vm-sentinel/tui"
	"github.com/hochfrequenz/vm-sentinel/web/api"
)

// withApp wraps a command body that needs the wired engine
func withApp(opts *rootOptions, run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func botOrDash(bot *string) string {
	if bot == nil {
		return "-"
	}
	return *bot
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if port == 0 {
				port = a.cfg.Web.Port
			}
			addr := fmt.Sprintf("%s:%d", a.cfg.Web.Host, port)
			server := api.NewServer(api.Deps{
				Store:       a.store,
				Matcher:     a.matcher,
				Coordinator: a.coordinator,
				Notifier:    a.notifier,
				Metrics:     a.metrics,
			}, addr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				w, err := watchCatalog(a, server)
				if err != nil {
					return err
				}
				w.Start(ctx)
				defer w.Stop()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving VM Sentinel at http://%s\n", addr)
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}),
	}
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the bot catalog when the seed file changes")
	return cmd
}

// watchCatalog re-applies the bots of the seed file whenever it changes and
// tells connected clients. VMs are not reloaded.
func watchCatalog(a *app, server *api.Server) (*inventory.Watcher, error) {
	if a.seedPath == "" {
		return nil, errors.New("--watch needs a seed file (--seed or general.seed_path)")
	}
	return inventory.NewWatcher(a.seedPath, func(inv *inventory.Inventory) {
		if err := inv.ApplyCatalog(a.store); err != nil {
			log.WithError(err).Warn("catalog reload failed")
			return
		}
		bots, err := a.store.ListBots()
		if err != nil {
			log.WithError(err).Warn("catalog reload failed")
			return
		}
		server.Broadcast(api.Event{Type: api.EventCatalogChanged, Data: bots})
	})
}

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the TUI dashboard",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			// the dashboard owns the terminal; keep log lines off it
			log.SetOutput(io.Discard)
			defer log.SetOutput(os.Stderr)

			model := tui.NewModel(tui.ModelConfig{Backend: a.store, Suggester: a.matcher})
			_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		}),
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var name, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List VMs",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			filter, err := view.ParseStatusFilter(status)
			if err != nil {
				return err
			}
			vms, err := a.store.ListVMs(vmstore.ListOptions{})
			if err != nil {
				return err
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tNAME\tPROCESS\tBOT\tSTATUS\tCPU\tMEM GB\tDISK GB\tNET MBPS")
			for vm := range view.Project(vms, name, filter) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					vm.ID, vm.Name, vm.ProcessID, botOrDash(vm.BotID), vm.Status,
					vm.CPUCores, vm.MemoryGB, vm.StorageGB, vm.NetworkBandwidthMbps)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "case-insensitive name substring")
	cmd.Flags().StringVar(&status, "status", "", "all, free or assigned")
	return cmd
}

func newBotsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bots",
		Short: "List the bot catalog with VM counts",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			bots, err := a.store.ListBots()
			if err != nil {
				return err
			}
			load, err := a.store.BotLoad()
			if err != nil {
				return err
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tNAME\tVMS")
			for _, b := range bots {
				fmt.Fprintf(w, "%s\t%s\t%d\n", b.ID, b.Name, load[b.ID])
			}
			return w.Flush()
		}),
	}
}

func newProcessesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "processes",
		Short: "List process groups",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			pids, err := a.store.ProcessIDs()
			if err != nil {
				return err
			}
			vms, err := a.store.ListVMs(vmstore.ListOptions{})
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			for _, vm := range vms {
				counts[vm.ProcessID]++
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "PROCESS\tVMS")
			for _, pid := range pids {
				fmt.Fprintf(w, "%s\t%d\n", pid, counts[pid])
			}
			return w.Flush()
		}),
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show assignment totals",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			vms, err := a.store.ListVMs(vmstore.ListOptions{})
			if err != nil {
				return err
			}
			bots, err := a.store.ListBots()
			if err != nil {
				return err
			}
			pids, err := a.store.ProcessIDs()
			if err != nil {
				return err
			}

			sum := view.Summarize(view.Project(vms, "", view.All))
			fmt.Fprintf(cmd.OutOrStdout(), "VMs: %d total | %d free | %d assigned\n", sum.Total, sum.Free, sum.Assigned)
			fmt.Fprintf(cmd.OutOrStdout(), "Bots: %d | Processes: %d\n", len(bots), len(pids))
			return nil
		}),
	}
}

type suggestResult struct {
	vm         *domain.VM
	suggestion *matcher.Suggestion
}

func newSuggestCmd(opts *rootOptions) *cobra.Command {
	var (
		all      bool
		parallel int
		apply    bool
	)
	cmd := &cobra.Command{
		Use:   "suggest [VM...]",
		Short: "Ask the oracle which bot should back each VM",
		Long: `Ask the scoring oracle for a bot per VM. With --all every free VM is
considered. Suggestions are only printed unless --apply is given.`,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("name VMs or pass --all, not both")
			}

			var vms []*domain.VM
			if all {
				free, err := a.store.ListVMs(vmstore.ListOptions{Status: domain.StatusFree})
				if err != nil {
					return err
				}
				vms = free
			} else {
				for _, id := range args {
					vm, err := a.store.GetVM(id)
					if err != nil {
						return err
					}
					vms = append(vms, vm)
				}
			}
			bots, err := a.store.ListBots()
			if err != nil {
				return err
			}

			results, failed := suggestAll(cmd.Context(), a.matcher, vms, bots, parallel)

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "VM\tNAME\tCURRENT\tSUGGESTED\tREASON")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.vm.ID, r.vm.Name, botOrDash(r.vm.BotID), r.suggestion.BotID, oneLine(r.suggestion.Reason))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if apply {
				for _, r := range results {
					vm, err := a.store.SetBot(r.vm.ID, domain.BotRef(r.suggestion.BotID))
					if err != nil {
						failed = multierror.Append(failed, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s\n", *vm.BotID, vm.ID)
				}
			}
			return failed.ErrorOrNil()
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "suggest for every free VM")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "concurrent oracle calls")
	cmd.Flags().BoolVar(&apply, "apply", false, "assign each suggested bot")
	return cmd
}

// suggestAll asks for every VM with at most limit calls in flight. One
// failure does not stop the others; results keep the input order.
func suggestAll(ctx context.Context, m *matcher.Matcher, vms []*domain.VM, bots []domain.Bot, limit int) ([]suggestResult, *multierror.Error) {
	if limit < 1 {
		limit = 1
	}
	suggestions := make([]*matcher.Suggestion, len(vms))

	var (
		mu     sync.Mutex
		failed *multierror.Error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, vm := range vms {
		g.Go(func() error {
			s, err := m.SuggestFor(ctx, vm, bots)
			if err != nil {
				mu.Lock()
				failed = multierror.Append(failed, err)
				mu.Unlock()
				return nil
			}
			suggestions[i] = s
			return nil
		})
	}
	g.Wait()

	var results []suggestResult
	for i, s := range suggestions {
		if s != nil {
			results = append(results, suggestResult{vm: vms[i], suggestion: s})
		}
	}
	return results, failed
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "batch PID",
		Short: "Show or reassign the VMs of a process",
		Long: `Without --set the process batch is printed. Each --set VM=BOT stages a
bot for one VM (BOT "none" unassigns); all staged changes are then
committed together.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			changes, err := parseChanges(sets)
			if err != nil {
				return err
			}

			set, err := a.coordinator.OpenBatch(args[0])
			if err != nil {
				return err
			}
			defer a.coordinator.Discard(set)

			if len(changes) > 0 {
				ids := make([]string, 0, len(changes))
				for id := range changes {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					if err := a.coordinator.Stage(set, id, changes[id]); err != nil {
						return err
					}
				}
				applied, err := a.coordinator.Commit(set)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d change(s) to %s\n", applied, set.ProcessID())
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "VM\tNAME\tBOT\tSTATUS")
			for _, id := range set.VMIDs() {
				vm, err := a.store.GetVM(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", vm.ID, vm.Name, botOrDash(vm.BotID), vm.Status)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "VM=BOT to stage; BOT may be none")
	return cmd
}

// parseChanges turns VM=BOT pairs into staged bots; "none" means unassign
func parseChanges(pairs []string) (map[string]*string, error) {
	changes := make(map[string]*string, len(pairs))
	for _, p := range pairs {
		vmID, bot, ok := strings.Cut(p, "=")
		vmID, bot = strings.TrimSpace(vmID), strings.TrimSpace(bot)
		if !ok || vmID == "" || bot == "" {
			return nil, errors.Errorf("invalid --set %q, want VM=BOT or VM=none", p)
		}
		if _, dup := changes[vmID]; dup {
			return nil, errors.Errorf("%s is set more than once", vmID)
		}
		if strings.EqualFold(bot, "none") {
			changes[vmID] = nil
		} else {
			changes[vmID] = domain.BotRef(bot)
		}
	}
	return changes, nil
}
