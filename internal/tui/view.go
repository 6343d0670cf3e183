package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kamilpajak/crestline/internal/display"
	"github.com/kamilpajak/crestline/pkg/analysis"
)

// View renders the UI.
func (a App) View() string {
	var b strings.Builder

	b.WriteString(Title.Render("crestline · CBCT analyzer"))
	b.WriteString("\n\n")

	b.WriteString(a.renderImage())
	b.WriteString("\n")
	if a.focus == focusPath {
		b.WriteString(a.path.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(renderModes(a.snap.Mode))
	b.WriteString("\n")
	if a.focus == focusZoom {
		b.WriteString(a.zoom.View())
	} else {
		b.WriteString(Label.Render("zoom ") + a.snap.Zoom + Label.Render(" × (px → mm)"))
	}
	b.WriteString("\n\n")

	b.WriteString(a.renderStatus())

	if a.snap.Error != "" {
		b.WriteString(ErrorStyle.Render("⚠ " + a.snap.Error))
		b.WriteString("\n")
	}
	if a.err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + a.err.Error()))
		b.WriteString("\n")
	}
	if a.notice != "" {
		b.WriteString(WarnStyle.Render(a.notice))
		b.WriteString("\n")
	}

	if !a.snap.Display.Empty {
		b.WriteString(RenderFields(a.snap.Display))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(a.help()))
	return b.String()
}

func (a App) renderImage() string {
	img := a.snap.Image
	if img == nil {
		return Label.Render("No image selected")
	}
	line := fmt.Sprintf("%s %s  %s, %s", Label.Render("image"), img.Name, img.ContentType, humanBytes(img.Size))
	if p := a.snap.Preview; p != nil && p.Width > 0 {
		line += fmt.Sprintf(", %d×%d px", p.Width, p.Height)
	}
	return line
}

func (a App) renderStatus() string {
	switch {
	case a.running || a.snap.Busy:
		return a.spinner.View() + " Analyzing…\n"
	case a.snap.CanRun:
		return Label.Render("ready · press enter to run") + "\n"
	}
	return ""
}

func (a App) help() string {
	switch a.focus {
	case focusPath:
		return "enter load · esc cancel · ctrl+c quit"
	case focusZoom:
		return "enter apply · esc cancel · ctrl+c quit"
	}
	return "o open · z zoom · 1/2/3 or tab mode · enter run · q quit"
}

func renderModes(current analysis.Mode) string {
	tabs := make([]string, 0, 3)
	for i, m := range analysis.Modes() {
		label := fmt.Sprintf("%d %s", i+1, m.Title())
		if m == current {
			tabs = append(tabs, ActiveModeTab.Render(label))
		} else {
			tabs = append(tabs, ModeTab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)
}

// RenderFields renders an interpreted result as a bordered panel.
func RenderFields(f display.Fields) string {
	var lines []string
	lines = append(lines, PanelTitle.Render(strings.ToUpper(f.Title)))
	if f.Mismatch {
		lines = append(lines, WarnStyle.UnsetPadding().Render(fmt.Sprintf("result is from %s; re-run to refresh", f.Source.Title())))
	}

	width := 0
	for _, r := range f.Rows {
		width = max(width, lipgloss.Width(r.Label))
	}
	for _, r := range f.Rows {
		detection := r.Key == "bone" || r.Key == "nerve"
		lines = append(lines, fmt.Sprintf("%s  %s", Label.Render(fmt.Sprintf("%-*s", width, r.Label)), valueStyle(r.Key, detection, r.OK).Render(r.Value)))
	}
	if f.HasImage {
		lines = append(lines, Label.Render("annotated image received (see dashboard)"))
	}
	out := Panel.Render(strings.Join(lines, "\n"))

	if f.Mode == analysis.ModeRecommend {
		switch {
		case f.Implant != nil:
			out += "\n" + ImplantPanel.Render(fmt.Sprintf("%s\n%s\nØ %s × %s length",
				PanelTitle.Render("RECOMMENDED IMPLANT"),
				lipgloss.NewStyle().Bold(true).Render(f.Implant.Company),
				display.MM(f.Implant.DiameterMM), display.MM(f.Implant.LengthMM)))
		case f.NoRecommendation:
			out += "\n" + ErrorStyle.Render(display.NoImplantMessage)
		}
	}
	return out
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
