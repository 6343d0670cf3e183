package crestline

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/kamilpajak/crestline/internal/display"
	"github.com/kamilpajak/crestline/internal/history"
	"github.com/kamilpajak/crestline/internal/session"
	"github.com/kamilpajak/crestline/pkg/analysis"
)

// printResult writes the run header and errors to stderr and the result
// fields to stdout.
func printResult(stderr, stdout io.Writer, snap session.Snapshot) {
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(stderr)
	if snap.Image != nil {
		_, _ = dim.Fprintf(stderr, "  %s · %s · zoom %s\n", snap.Image.Name, snap.Mode.Title(), snap.Zoom)
	}
	_, _ = dim.Fprintln(stderr, "  "+strings.Repeat("━", 50))

	if snap.Error != "" {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(stderr, "  Error: %s\n", snap.Error)
	}
	if snap.Display.Empty {
		return
	}

	fmt.Fprintln(stderr)
	printFields(stdout, snap.Display)
}

func printFields(w io.Writer, f display.Fields) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintln(w, strings.ToUpper(f.Title))
	if f.Mismatch {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "result is from %s; re-run to refresh\n", f.Source.Title())
	}

	width := 0
	for _, r := range f.Rows {
		width = max(width, utf8.RuneCountInString(r.Label))
	}
	for _, r := range f.Rows {
		_, _ = dim.Fprintf(w, "%-*s  ", width, r.Label)
		fmt.Fprintln(w, valueColor(r).Sprint(r.Value))
	}

	if f.Mode != analysis.ModeRecommend {
		return
	}
	fmt.Fprintln(w)
	switch {
	case f.Implant != nil:
		_, _ = bold.Fprintln(w, "RECOMMENDED IMPLANT")
		fmt.Fprintln(w, f.Implant.Company)
		fmt.Fprintf(w, "Ø %s × %s length\n", display.MM(f.Implant.DiameterMM), display.MM(f.Implant.LengthMM))
	case f.NoRecommendation:
		red := color.New(color.FgRed)
		_, _ = red.Fprintln(w, display.NoImplantMessage)
	}
}

func valueColor(r display.Row) *color.Color {
	switch r.Key {
	case "bone", "nerve":
		if r.OK {
			return color.New(color.FgGreen)
		}
		return color.New(color.FgRed)
	}
	if r.Value == display.Missing || r.Value == display.NoNerve {
		return color.New(color.FgHiBlack)
	}
	return color.New(color.FgCyan)
}

// summarize condenses an entry to one line of label/value pairs.
func summarize(e history.Entry) string {
	if e.Error != "" {
		return "error: " + e.Error
	}
	f := display.Present(e.Result, e.Mode)
	if f.Empty {
		return display.Missing
	}
	parts := make([]string, 0, len(f.Rows)+1)
	for _, r := range f.Rows {
		parts = append(parts, r.Label+" "+r.Value)
	}
	if f.Implant != nil {
		parts = append(parts, fmt.Sprintf("implant %s Ø %s × %s", f.Implant.Company,
			display.MM(f.Implant.DiameterMM), display.MM(f.Implant.LengthMM)))
	} else if f.NoRecommendation {
		parts = append(parts, "no implant")
	}
	return strings.Join(parts, ", ")
}
