package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"market-tracker/internal/monitor"
	"market-tracker/internal/notify"
	"market-tracker/internal/resilience"
	"market-tracker/internal/scheduler"
	"market-tracker/internal/server"
	"market-tracker/internal/store"
)

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll quotes and fire alerts",
		Long: `Poll every tracked symbol on a fixed interval, evaluate alerts against the
latest prices and notify on each alert that fires. Runs until interrupted.`,
		Example: `  tracker watch
  tracker watch --interval 30s
  tracker watch --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				interval = app.Config.Polling.Interval
			}
			once, _ := cmd.Flags().GetBool("once")

			cycle, err := app.newCycle(ctx, cmd)
			if err != nil {
				return err
			}

			report := func(res monitor.Result, err error) {
				if err != nil {
					output.Error("Cycle failed: %v", err)
					return
				}
				if output.IsJSON() {
					_ = output.JSON(cycleSummary(res))
					return
				}
				line := fmt.Sprintf("[%s] %d prices, %d triggered", res.StartedAt.Format("15:04:05"), len(res.Prices), len(res.Triggered))
				if len(res.Failures) > 0 {
					line += fmt.Sprintf(", %d unavailable", len(res.Failures))
				}
				output.Dim("%s", line)
				for _, f := range res.Failures {
					app.Logger.Debug().Str("name", f.Name).Str("reason", describeFailure(f.Err)).Msg("No data this cycle")
				}
			}

			sched := scheduler.New(cycle, scheduler.Config{
				Interval: interval,
				OnResult: report,
			}, app.Logger)

			if once {
				_, err := sched.RunNow(ctx)
				return err
			}

			if !output.IsJSON() {
				output.Info("Watching %d symbols every %s (source: %s). Press Ctrl+C to stop.",
					app.Symbols.Len(), interval, app.fetcher().SourceName())
			}
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().Duration("interval", 0, "polling interval (default from config)")
	cmd.Flags().Bool("once", false, "run a single cycle and exit")
	return cmd
}

// newCycle wires fetcher, store, evaluator and notifiers into a cycle runner.
func (a *App) newCycle(ctx context.Context, cmd *cobra.Command) (*monitor.Cycle, error) {
	alerts, err := a.alertStore(ctx)
	if err != nil {
		return nil, err
	}

	nc := a.Config.Notifications
	notifier := notify.NewMultiNotifier(nc)
	if nc.Terminal.Enabled {
		notifier.AddChannel(notify.NewTerminalNotifier(cmd.OutOrStdout(), nc.Terminal))
	}
	a.Logger.Debug().Strs("channels", notifier.Channels()).Msg("Notifiers configured")

	evaluator := monitor.NewEvaluator(alerts, a.Logger, monitor.WithAudit(a.Audit))
	return monitor.NewCycle(a.fetcher(), a.Symbols, evaluator, notifier, a.Logger), nil
}

// healthMonitor checks the storage backend and both request budgets.
func (a *App) healthMonitor(alerts *store.AlertStore) *resilience.HealthMonitor {
	h := resilience.NewHealthMonitor(nil)
	h.Register("storage", func(ctx context.Context) resilience.ComponentHealth {
		if err := alerts.Ping(ctx); err != nil {
			return resilience.ComponentHealth{Status: resilience.HealthStatusUnhealthy, Message: err.Error()}
		}
		return resilience.ComponentHealth{Status: resilience.HealthStatusHealthy, Message: a.Config.Storage.Backend}
	})
	a.fetcher()
	if a.Limiter != nil {
		h.Register("quotes_budget", resilience.LimiterCheck(a.Limiter, resilience.CategoryQuotes))
		h.Register("candles_budget", resilience.LimiterCheck(a.Limiter, resilience.CategoryCandles))
	}
	return h
}

type summary struct {
	StartedAt time.Time          `json:"started_at"`
	Prices    map[string]float64 `json:"prices"`
	Triggered []string           `json:"triggered"`
	Failed    []string           `json:"failed"`
}

func cycleSummary(res monitor.Result) summary {
	s := summary{
		StartedAt: res.StartedAt,
		Prices:    make(map[string]float64, len(res.Prices)),
		Triggered: []string{},
		Failed:    []string{},
	}
	for name, q := range res.Prices {
		s.Prices[name] = q.Current
	}
	for _, a := range res.Triggered {
		s.Triggered = append(s.Triggered, a.ID)
	}
	for _, f := range res.Failures {
		s.Failed = append(s.Failed, f.Name)
	}
	return s
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard",
		Long: `Serve the dashboard build directory with hardened security headers and a
read-only /api/alerts endpoint. Add --watch to poll and fire alerts in the
same process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Config.Server.Addr
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = app.Config.Server.StaticDir
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				output.Warning("Static directory %s not found; only /api/alerts will answer", dir)
			}

			alerts, err := app.alertStore(ctx)
			if err != nil {
				return err
			}
			srv := server.New(server.Config{Addr: addr, StaticDir: dir, Health: app.healthMonitor(alerts)}, alerts, app.Logger)

			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				cycle, err := app.newCycle(ctx, cmd)
				if err != nil {
					return err
				}
				sched := scheduler.New(cycle, scheduler.Config{Interval: app.Config.Polling.Interval}, app.Logger)
				sched.Start(ctx)
				defer sched.Stop()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			output.Info("Dashboard on http://localhost%s", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	cmd.Flags().String("dir", "", "dashboard build directory (default from config)")
	cmd.Flags().Bool("watch", false, "also run the alert polling loop")
	return cmd
}
