package crestline

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/internal/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historySimilar string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses",
	Long: `List recorded analyses, newest first. With --similar, list measured cases
closest to the given entry by bone height and widths.

Examples:
  crestline history --limit 10
  crestline history --similar 0b6f3c1e-7d7a-4c5e-9a57-2f1f7f0c6a10`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
	historyCmd.Flags().StringVar(&historySimilar, "similar", "", "Entry ID to find similar cases for")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.History == "" {
		return errors.New("history is disabled")
	}
	ctx := cmd.Context()

	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	if historySimilar == "" {
		entries, err := store.List(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		printEntries(os.Stdout, entries)
		return nil
	}

	id, err := uuid.Parse(historySimilar)
	if err != nil {
		return fmt.Errorf("invalid entry id %q", historySimilar)
	}
	matches, err := store.Similar(ctx, id, historyLimit)
	if err != nil {
		return fmt.Errorf("similar cases: %w", err)
	}
	printMatches(os.Stdout, matches)
	return nil
}

func printEntries(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No analyses recorded.")
		return
	}
	for _, e := range entries {
		printEntry(w, e, "")
	}
}

func printMatches(w io.Writer, matches []history.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No similar measured cases.")
		return
	}
	for _, m := range matches {
		printEntry(w, m.Entry, fmt.Sprintf("d=%.2f", m.Distance))
	}
}

func printEntry(w io.Writer, e history.Entry, extra string) {
	dim := color.New(color.FgHiBlack)
	bold := color.New(color.Bold)

	_, _ = dim.Fprintf(w, "%s  %s  ", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"))
	_, _ = bold.Fprintf(w, "%-9s", e.Mode)
	fmt.Fprintf(w, " %s", e.ImageName)
	if extra != "" {
		_, _ = dim.Fprintf(w, "  %s", extra)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "    %s\n", summarize(e))
}
