// Package cli provides the command-line interface for the market tracker.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"market-tracker/internal/config"
	"market-tracker/internal/logging"
	"market-tracker/internal/models"
	"market-tracker/internal/quotes"
	"market-tracker/internal/resilience"
	"market-tracker/internal/security"
	"market-tracker/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. Config and Logger are set before
// any command runs; the quote and storage dependencies are built on first
// use so commands that need neither stay fast.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Audit   *security.AuditLogger
	Symbols *models.SymbolTable
	Limiter *resilience.Limiter
	Fetcher *quotes.Fetcher
	Alerts  *store.AlertStore

	// TokenSource is "env", "vault" or empty when running on demo data.
	TokenSource string

	kv    store.KV
	ready bool
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	return newRootCmd(&App{Logger: logger})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Market tracker - index and crypto quotes with price alerts",
		Long: `Market tracker follows stock indices and crypto pairs through the Finnhub
API and fires local price alerts when a threshold is crossed.

Without an API token the tracker runs on built-in demo quotes.
Use 'tracker auth set-token' to store a token.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if !app.ready {
				dir, _ := cmd.Flags().GetString("config")
				if err := app.setup(dir, debug); err != nil {
					return err
				}
			}
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/market-tracker)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAuthCmd(app))
	rootCmd.AddCommand(newAlertCmd(app))
	addMarketDataCommands(rootCmd, app)
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

// setup loads configuration and the ambient services every command shares.
func (a *App) setup(configDir string, debug bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	a.Config = cfg

	logCfg := cfg.LogConfig()
	if debug {
		logCfg.Level = "debug"
	}
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	if cfg.Security.AuditEnabled {
		audit, err := security.NewAuditLogger(cfg.AuditConfig())
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Audit log unavailable")
		} else {
			a.Audit = audit
		}
	}

	source, err := cfg.ResolveToken()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Could not open the token vault, continuing with demo data")
	}
	a.TokenSource = source
	if source == "vault" {
		_ = a.Audit.Log(context.Background(), security.AuditEvent{
			EventType: security.AuditCredentialOpen,
			Action:    "open",
			Success:   true,
		})
	}

	symbols, err := cfg.LoadSymbolTable()
	if err != nil {
		return fmt.Errorf("loading symbol table: %w", err)
	}
	a.Symbols = symbols

	a.ready = true
	return nil
}

// fetcher returns the shared fetcher, building it on first use.
func (a *App) fetcher() *quotes.Fetcher {
	if a.Fetcher != nil {
		return a.Fetcher
	}

	cfg := a.Config
	var src quotes.Source
	if cfg.UseDemo() {
		src = quotes.NewDemoSource()
		a.Logger.Debug().Msg("Using demo quotes")
	} else {
		src = quotes.NewFinnhubClient(quotes.ClientConfig{
			BaseURL: cfg.API.BaseURL,
			Token:   cfg.API.Token,
			Timeout: cfg.API.Timeout,
		}, a.Logger)
	}

	a.Limiter = resilience.NewLimiter(resilience.Limits{
		Quotes:  cfg.RateLimit.QuotesPerWindow,
		Candles: cfg.RateLimit.CandlesPerWindow,
		Window:  cfg.RateLimit.Window,
	}, time.Now, a.Logger)

	a.Fetcher = quotes.NewFetcher(src, security.NewValidator(time.Now, a.Audit), a.Limiter, a.Logger,
		quotes.WithAudit(a.Audit))
	return a.Fetcher
}

// alertStore returns the shared alert store, opening the backend on first
// use.
func (a *App) alertStore(ctx context.Context) (*store.AlertStore, error) {
	if a.Alerts != nil {
		return a.Alerts, nil
	}

	sc := a.Config.Storage
	kv, err := store.Open(ctx, store.Options{
		Backend:       sc.Backend,
		SQLitePath:    sc.SQLitePath,
		RedisAddr:     sc.RedisAddr,
		RedisPassword: sc.RedisPassword,
		RedisDB:       sc.RedisDB,
		RedisPrefix:   sc.RedisPrefix,
		PostgresDSN:   sc.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", sc.Backend, err)
	}
	a.kv = kv
	a.Alerts = store.NewAlertStore(kv, a.Logger, store.WithKey(sc.Key))
	a.Logger.Debug().Str("backend", sc.Backend).Msg("Alert store opened")
	return a.Alerts, nil
}

// Close releases the storage backend and the audit log.
func (a *App) Close() error {
	var firstErr error
	if a.kv != nil {
		firstErr = a.kv.Close()
		a.kv = nil
		a.Alerts = nil
	}
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.Audit = nil
	}
	return firstErr
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Market Tracker v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config.Redacted())
			}
			showConfig(output, app)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Dir})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, app *App) {
	cfg := app.Config

	output.Bold("Market Data")
	if cfg.UseDemo() {
		output.Printf("  Source:          demo\n")
	} else {
		output.Printf("  Source:          %s (token from %s)\n", cfg.API.BaseURL, app.TokenSource)
	}
	output.Printf("  Timeout:         %s\n", cfg.API.Timeout)
	output.Printf("  Quotes/window:   %d\n", cfg.RateLimit.QuotesPerWindow)
	output.Printf("  Candles/window:  %d\n", cfg.RateLimit.CandlesPerWindow)
	output.Printf("  Window:          %s\n", cfg.RateLimit.Window)
	output.Printf("  Poll interval:   %s\n", cfg.Polling.Interval)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Backend:         %s\n", cfg.Storage.Backend)
	output.Printf("  Key:             %s\n", cfg.Storage.Key)
	switch cfg.Storage.Backend {
	case store.BackendSQLite:
		output.Printf("  Path:            %s\n", cfg.Storage.SQLitePath)
	case store.BackendRedis:
		output.Printf("  Address:         %s\n", cfg.Storage.RedisAddr)
	case store.BackendPostgres:
		output.Printf("  DSN:             %s\n", cfg.Redacted().Storage.PostgresDSN)
	}
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Terminal:        %v\n", cfg.Notifications.Terminal.Enabled)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
	output.Println()

	output.Bold("Dashboard")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Static dir:      %s\n", cfg.Server.StaticDir)
}
