package crestline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kamilpajak/crestline/internal/client"
	"github.com/kamilpajak/crestline/internal/config"
	"github.com/kamilpajak/crestline/internal/history"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagConfig    string
	flagLogLevel  string
	flagHistory   string
	flagNoHistory bool
)

// errFailed marks a command that already reported its failure.
var errFailed = errors.New("failed")

var rootCmd = &cobra.Command{
	Use:   "crestline",
	Short: "CBCT cross-section analysis client",
	Long: `crestline sends CBCT cross-section images to an analysis service and
shows the segmentation, bone measurements or implant recommendation it returns.

Images can be local files, http(s):// URLs or azblob://container/blob references.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "Analysis service base URL (default http://localhost:5000)")
	pf.StringVar(&flagConfig, "config", "", "Config file (default ~/.crestline/config.yaml)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagHistory, "history", "", "History store: a SQLite path or postgres:// URL")
	pf.BoolVar(&flagNoHistory, "no-history", false, "Do not record or read analysis history")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and environment, then applies the global
// flags that were set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server = flagServer
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("history") {
		cfg.History = flagHistory
	}
	if flagNoHistory {
		cfg.History = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Server, client.WithTimeout(cfg.Timeout))
}

func newResolver(cfg *config.Config) (*intake.Resolver, error) {
	if cfg.Azure.Account == "" || cfg.Azure.Key == "" {
		return intake.NewResolver(nil), nil
	}
	blobs, err := intake.NewBlobSource(cfg.Azure.Account, cfg.Azure.Key)
	if err != nil {
		return nil, fmt.Errorf("azure blob source: %w", err)
	}
	return intake.NewResolver(blobs), nil
}

// openHistory returns nil when history is disabled. Failing to open the
// store is logged; analysis works without it.
func openHistory(ctx context.Context, cfg *config.Config) history.Store {
	if cfg.History == "" {
		return nil
	}
	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		logging.Warn("history unavailable", "err", err)
		return nil
	}
	return store
}
