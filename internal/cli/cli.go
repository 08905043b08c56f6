// Package cli is the pawsfarm command line.
//
//	pawsfarm run                       start every active account
//	pawsfarm accounts import -f FILE   add accounts from a YAML file
//	pawsfarm accounts list
//	pawsfarm accounts login ID PARAM   store a fresh login parameter
//	pawsfarm status                    table counts and pending logins
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"jordanella.com/paws-farm-go/internal/config"
	"jordanella.com/paws-farm-go/internal/credential"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/engine"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/httpapi"
	"jordanella.com/paws-farm-go/internal/logging"
	"jordanella.com/paws-farm-go/internal/login"
	"jordanella.com/paws-farm-go/internal/metrics"
	"jordanella.com/paws-farm-go/internal/notify"
	"jordanella.com/paws-farm-go/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

type rootOptions struct {
	configFile string
	envFile    string
}

// BuildCLI assembles the command tree.
func BuildCLI() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "pawsfarm",
		Short:         "Keeps a fleet of BabyDogePaws accounts mining and upgrading",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "settings.ini", "settings file path")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "dotenv file with SMTP secrets")

	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildAccountsCommand(opts))
	rootCmd.AddCommand(buildStatusCommand(opts))
	return rootCmd
}

func (o *rootOptions) settings() (*config.Settings, error) {
	s, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Configure(logging.ParseLevel(s.Logging.Level))
	return s, nil
}

func (o *rootOptions) openDB() (*config.Settings, *database.DB, error) {
	s, err := o.settings()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.OpenAndMigrate(s.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, db, nil
}

func buildRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bootstrap every active account and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
}

func run(ctx context.Context, opts *rootOptions) error {
	settings, db, err := opts.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := logging.NewLogger("Main")

	secrets, err := config.LoadEnv(opts.envFile)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	// The bus must stop before the notifier closes.
	notifier := notify.New(secrets)
	defer notifier.Close()

	bus := events.NewEventBus(1000).SetLogger(logging.NewLogger("EventBus"))
	defer bus.Stop()

	eventLog, err := logging.NewEventLogger(bus, settings.Logging.Dir)
	if err != nil {
		return err
	}
	defer eventLog.Close()

	collector := metrics.NewCollector(prometheus.NewRegistry())
	collector.Subscribe(bus)

	notify.Subscribe(bus, notifier)

	client := game.NewClient(settings.Game.BaseURL, settings.Game.HTTPTimeout).WithObserver(collector)
	reacquirer := login.NewStoreReacquirer(db, settings.Login.Wait, settings.Login.PollInterval)

	manager := credential.NewManager(client, reacquirer, nil, credential.Options{
		MaxLoginAttempts: settings.Login.MaxAttempts,
		RetryPause:       settings.Login.RetryPause,
	})
	manager.SetRecorder(collector)
	defer manager.Close()

	api := game.NewAPI(client, manager).SetMaxAttempts(settings.Game.MaxAttempts)

	sched := scheduler.New(settings.Schedule.Workers)
	sched.SetRecorder(collector)
	defer sched.Stop()

	eng := engine.New(engine.Deps{
		API:         api,
		Credentials: manager,
		Scheduler:   sched,
		Store:       db,
		Bus:         bus,
		Settings:    settings,
	})
	manager.SetHooks(eng.Hooks())

	if settings.Server.Enabled {
		ropts := httpapi.Options{}
		if settings.Metrics.Enabled {
			ropts.Metrics = collector.Handler()
			ropts.MetricsPath = settings.Metrics.Path
		}
		server := httpapi.NewServer(settings.Server.Addr, httpapi.NewRouter(eng, db, ropts))
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("admin API shutdown", err)
			}
		}()
	}

	started, err := eng.BootstrapAll(ctx)
	if err != nil {
		return err
	}
	logger.InfoWithContext("farm running", map[string]interface{}{
		"accounts": started,
		"mail":     secrets.MailEnabled(),
	})

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")
	return nil
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
