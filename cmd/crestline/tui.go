package crestline

import (
	"errors"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kamilpajak/crestline/internal/config"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/logging"
	"github.com/kamilpajak/crestline/internal/session"
	"github.com/kamilpajak/crestline/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [image]",
	Short: "Open the interactive terminal session",
	Long: `Open an interactive session: load images, switch modes, adjust zoom and
run analyses from the terminal. Logs go to ~/.crestline/logs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logging.InitFile(filepath.Join(config.Dir(), "logs"), cfg.LogLevel); err != nil {
		return err
	}
	defer logging.Close()
	ctx := cmd.Context()

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}
	store := openHistory(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	opts := session.Options{
		Analyzer: newClient(cfg),
		Mode:     cfg.DefaultMode(),
		Zoom:     cfg.Zoom,
	}
	if store != nil {
		opts.Recorder = store
	}
	sess := session.New(opts)

	if len(args) == 1 {
		c, err := resolver.Open(ctx, args[0])
		switch {
		case errors.Is(err, intake.ErrNotImage):
			return fmt.Errorf("%s is not an image", args[0])
		case err != nil:
			return err
		}
		sess.SelectImage(c)
	}

	app := tui.NewApp(sess, tui.OpenCmd(ctx, resolver), tui.RunCmd(ctx, sess))
	if _, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
