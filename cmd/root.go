package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/app"
	"github.com/JakeFAU/gyik-crawler/internal/config"
	"github.com/JakeFAU/gyik-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// factories builds the process services. Tests swap these for fakes.
type factories struct {
	newLogger func(cfg config.Config) (*zap.Logger, error)
	newApp    func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)
}

func defaultFactories() factories {
	return factories{
		newLogger: func(cfg config.Config) (*zap.Logger, error) {
			return logging.New(cfg.Logging.Development, cfg.Logging.File)
		},
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger)
		},
	}
}

// runtime is what subcommands get from the context.
type runtime struct {
	cfg config.Config
	app *app.App
}

func newRootCmd(f factories) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "gyik",
		Short: "Scrapes gyakorikerdesek.hu question threads into a relational store.",
		Long: `gyik walks the category listings of gyakorikerdesek.hu, assembles every
question thread across its answer pages and stores questions, answers, users
and keywords in SQLite or Postgres. Threads whose answer count has not changed
since the last run are skipped.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config is loaded here so flag values bound by subcommands are visible.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := f.newLogger(cfg)
			if err != nil {
				return err
			}
			a, err := f.newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, &runtime{cfg: cfg, app: a}))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("database", "", "SQLite database file")
	pf.String("log-file", "", "append logs to this file as well as stderr")

	cmd.AddCommand(newCrawlCmd(), newQuestionCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// withRuntime hands the services to fn and closes them afterwards, including
// when fn fails (cobra skips post-run hooks on error).
func withRuntime(fn func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		rt, err := resolveRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rt.app.Close(); cerr != nil && err == nil {
				err = cerr
			}
			_ = rt.app.Logger().Sync()
		}()
		return fn(cmd, args, rt)
	}
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultFactories()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
