package crestline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kamilpajak/crestline/internal/dashboard"
	"github.com/kamilpajak/crestline/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web dashboard",
	Long: `Serve a browser dashboard over one analysis session. Uploads, mode and
zoom changes, run progress, history and Prometheus metrics are exposed under
/api and /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default 8080)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Address to bind (default 127.0.0.1)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Dashboard.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Dashboard.Host = serveHost
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openHistory(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dcfg := dashboard.Config{
		Analyzer:  newClient(cfg),
		Mode:      cfg.DefaultMode(),
		Zoom:      cfg.Zoom,
		RateLimit: cfg.Dashboard.RateLimit,
		Burst:     cfg.Dashboard.Burst,
		Registry:  reg,
	}
	if store != nil {
		dcfg.History = store
	}

	addr := net.JoinHostPort(cfg.Dashboard.Host, strconv.Itoa(cfg.Dashboard.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           dashboard.NewHandler(dcfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("dashboard listening", "url", "http://"+addr, "server", cfg.Server, "history", store != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
