package crestline

import (
	"context"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the analysis service is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		c := newClient(cfg)
		if err := c.Health(ctx); err != nil {
			_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s: %v\n", c.BaseURL(), err)
			return errFailed
		}
		_, _ = color.New(color.FgGreen).Fprintf(os.Stdout, "✓ %s is up\n", c.BaseURL())
		return nil
	},
}
