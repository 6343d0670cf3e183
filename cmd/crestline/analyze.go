package crestline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/kamilpajak/crestline/internal/display"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/logging"
	"github.com/kamilpajak/crestline/internal/session"
	"github.com/kamilpajak/crestline/pkg/analysis"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	analyzeMode string
	analyzeZoom string
	analyzeJSON bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze one CBCT cross-section",
	Long: `Send one image to the analysis service and print the result for the
selected mode.

IMAGE can be:
  - A local file path: ./scan.png
  - An http(s) URL: https://example.com/scan.jpg
  - An Azure blob: azblob://scans/patient-17/slice-042.png

Examples:
  crestline analyze ./scan.png
  crestline analyze ./scan.png --mode measure --zoom 0.5
  crestline analyze ./scan.png --mode recommend --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeMode, "mode", "m", "", "Analysis mode (segment, measure, recommend)")
	analyzeCmd.Flags().StringVarP(&analyzeZoom, "zoom", "z", "", "Pixel to millimetre zoom factor (default 0.78)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the result as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.Init(os.Stderr, cfg.LogLevel)
	ctx := cmd.Context()

	mode := cfg.DefaultMode()
	if analyzeMode != "" {
		if mode, err = analysis.ParseMode(analyzeMode); err != nil {
			return err
		}
	}
	zoom := cfg.Zoom
	if cmd.Flags().Changed("zoom") {
		zoom = analyzeZoom
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}
	candidate, err := resolver.Open(ctx, args[0])
	if errors.Is(err, intake.ErrNotImage) {
		return fmt.Errorf("%s is not an image", args[0])
	}
	if err != nil {
		return err
	}

	store := openHistory(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	opts := session.Options{
		Analyzer:  newClient(cfg),
		Emitter:   progressEmitter(os.Stderr),
		Mode:      mode,
		Zoom:      zoom,
		NoPreview: true,
	}
	if store != nil {
		opts.Recorder = store
	}
	sess := session.New(opts)
	sess.SelectImage(candidate)

	out, err := sess.Run(ctx)
	if err != nil {
		return err
	}

	snap := sentSnapshot(sess.Snapshot(), out)
	if analyzeJSON {
		if err := outputJSON(os.Stdout, snap, out.Elapsed); err != nil {
			return err
		}
	} else {
		printResult(os.Stderr, os.Stdout, snap)
	}

	if out.Err != nil {
		return errFailed
	}
	return nil
}

// sentSnapshot reports the zoom that was actually sent rather than the
// text the user typed.
func sentSnapshot(snap session.Snapshot, out *session.Outcome) session.Snapshot {
	if out != nil {
		snap.Zoom = out.Request.ZoomText
	}
	return snap
}

// progressEmitter shows a spinner on a terminal and plain progress lines
// otherwise.
func progressEmitter(w *os.File) session.ProgressEmitter {
	if !isatty.IsTerminal(w.Fd()) && !isatty.IsCygwinTerminal(w.Fd()) {
		return &session.TextEmitter{W: w}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	return session.EmitterFunc(func(ev session.ProgressEvent) {
		switch ev.Type {
		case session.EventBusy:
			s.Suffix = fmt.Sprintf(" Analyzing %s (%s)...", ev.Image, ev.Mode.Title())
			s.Start()
		case session.EventSettled, session.EventError, session.EventStale:
			s.Stop()
		}
	})
}

// jsonOutput is the machine-readable form of a settled run.
type jsonOutput struct {
	Image     string         `json:"image"`
	Mode      analysis.Mode  `json:"mode"`
	Zoom      string         `json:"zoom"`
	Error     string         `json:"error,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Result    display.Fields `json:"result"`
}

func outputJSON(w io.Writer, snap session.Snapshot, elapsed time.Duration) error {
	out := jsonOutput{
		Mode:      snap.Mode,
		Zoom:      snap.Zoom,
		Error:     snap.Error,
		ElapsedMs: elapsed.Milliseconds(),
		Result:    snap.Display,
	}
	if snap.Image != nil {
		out.Image = snap.Image.Name
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
