package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"diagload/internal/banner"
	"diagload/internal/cli"
	"diagload/internal/config"
	"diagload/internal/dummy"
	"diagload/internal/logger"
	"diagload/internal/session"
	"diagload/internal/storage"
	"diagload/internal/tui"
	"diagload/internal/tui/history"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "diagload",
	Short: "diagload - synthetic load for the diagnostic-analysis service",
	Long: `
diagload replays a 49-minute traffic plan against the diagnostic-analysis
service: normal traffic, a curiosity spike, an epidemic build-up, its peak
and a cool-down, each ramping its own virtual users.

Runs headless by default; --tui shows a live dashboard.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd)
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd, historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.diagload.yaml)")
	rootCmd.PersistentFlags().String("history", "", "run history database (default is $HOME/.diagload/history.db)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log to this file instead of stderr")

	f := rootCmd.Flags()
	f.StringP("endpoint", "e", "", "service base URL, e.g. http://localhost:8080")
	f.String("image", "", "image fixture to submit (default is a built-in 1x1 PNG)")
	f.Int("timeout", 30, "request timeout in seconds")
	f.Float64("time-scale", 1.0, "multiply every stage, offset and pause; 0.01 runs the plan in about 30s")
	f.Duration("tick", 100*time.Millisecond, "scheduler reconcile interval")
	f.Uint64("seed", 0, "random seed for branch decisions (0 is time-seeded)")
	f.StringSlice("scenarios", nil, "run only these scenarios")
	f.String("metrics-addr", "", "serve Prometheus /metrics on this address during the run")
	f.StringP("out", "o", "", "output filename prefix for reports")
	f.Bool("tui", false, "show the live dashboard")

	bindFlags(rootCmd.PersistentFlags().Lookup, "history", "log-level", "log-file")
	bindFlags(f.Lookup, "endpoint", "image", "timeout", "time-scale", "tick", "seed", "scenarios", "metrics-addr", "out", "tui")
}

// bindFlags binds each flag to the viper key spelled with underscores.
func bindFlags(lookup func(string) *pflag.Flag, names ...string) {
	for _, name := range names {
		key := strings.ReplaceAll(name, "-", "_")
		if err := viper.BindPFlag(key, lookup(name)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.Bind(v)
	if err := config.ReadFile(v, cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runLoad(cmd *cobra.Command) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logFile := cfg.LogFile
	if cfg.TUI && logFile == "" {
		logFile = "diagload.log"
	}
	log, err := logger.New(cfg.LogLevel, logFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := session.New(cfg, nil, log)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := s.ServeMetrics(ctx, cfg.MetricsAddr); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	var (
		rec    storage.RunRecord
		runErr error
	)
	if cfg.TUI {
		rec, runErr = tui.Run(ctx, s)
	} else {
		rec, runErr = cli.Start(ctx, s, cmd.OutOrStdout())
	}

	if err := cli.Report(cmd.OutOrStdout(), rec, cfg.Out); err != nil {
		return err
	}
	if err := saveHistory(cfg.History, &rec); err != nil {
		log.Warn("run not saved to history", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func saveHistory(path string, rec *storage.RunRecord) error {
	store, err := storage.Open(path, storage.DefaultKeep)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(rec)
}

// --- Dummy Subcommand ---
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run an in-memory diagnostic service to test against",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		delay, _ := cmd.Flags().GetDuration("delay")
		result, _ := cmd.Flags().GetString("result")

		log, err := logger.New(viper.GetString("log_level"), viper.GetString("log_file"))
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("👻 Dummy diagnostic service on http://localhost:%d/api/v1\n", port)
		return dummy.Start(ctx, dummy.ServerConfig{
			Port:   port,
			Delay:  delay,
			Result: result,
			Log:    log,
		})
	},
}

// --- History Subcommand ---
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		interactive, _ := cmd.Flags().GetBool("interactive")
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := storage.Open(viper.GetString("history"), storage.DefaultKeep)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(limit)
		if err != nil {
			return err
		}

		switch {
		case asJSON:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		case interactive:
			return tui.BrowseHistory(records)
		default:
			fmt.Fprintln(cmd.OutOrStdout(), history.Render(records))
			return nil
		}
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	dummyCmd.Flags().Duration("delay", 20*time.Second, "how long an analysis stays pending")
	dummyCmd.Flags().String("result", "covid", "result every analysis resolves to")

	historyCmd.Flags().IntP("limit", "n", 20, "show at most this many runs (0 for all)")
	historyCmd.Flags().BoolP("interactive", "i", false, "browse runs in a table")
	historyCmd.Flags().Bool("json", false, "print runs as JSON")
}
