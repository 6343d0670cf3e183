package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/logging"
	"github.com/kamilpajak/crestline/internal/session"
	"github.com/kamilpajak/crestline/pkg/analysis"
)

// Controller is the part of a session the model drives directly. The
// blocking operations go through the injected commands instead.
type Controller interface {
	SelectImage(c *intake.Candidate) bool
	SetMode(m analysis.Mode) error
	SetZoom(text string)
	Snapshot() session.Snapshot
}

type focus int

const (
	focusNone focus = iota
	focusPath
	focusZoom
)

// previewPolls bounds how many refresh ticks wait for a preview.
const previewPolls = 10

// App is the root Bubble Tea model.
// It does not run requests itself; it receives outcomes via messages.
type App struct {
	ctrl Controller
	open func(ref string) tea.Cmd
	run  func() tea.Cmd

	path    textinput.Model
	zoom    textinput.Model
	spinner spinner.Model
	focus   focus

	snap    session.Snapshot
	running bool
	notice  string
	err     error
	polls   int
	width   int
	height  int
}

// NewApp creates an App over ctrl.
// open: returns a Cmd that resolves an image reference into ImageLoaded
// run: returns a Cmd that performs one analysis and yields RunFinished
func NewApp(ctrl Controller, open func(ref string) tea.Cmd, run func() tea.Cmd) App {
	path := textinput.New()
	path.Placeholder = "path, http(s):// URL or azblob://container/blob"
	path.Prompt = "image> "
	path.CharLimit = 1024
	path.Width = 60

	zoom := textinput.New()
	zoom.Placeholder = analysis.DefaultZoomText
	zoom.Prompt = "zoom> "
	zoom.CharLimit = 16
	zoom.Width = 10

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	a := App{
		ctrl:    ctrl,
		open:    open,
		run:     run,
		path:    path,
		zoom:    zoom,
		spinner: s,
	}
	a.snap = ctrl.Snapshot()
	if a.snap.Image == nil {
		a.focus = focusPath
		a.path.Focus()
	}
	return a
}

// OpenCmd returns an open function backed by r.
func OpenCmd(ctx context.Context, r *intake.Resolver) func(ref string) tea.Cmd {
	return func(ref string) tea.Cmd {
		return func() tea.Msg {
			c, err := r.Open(ctx, ref)
			return ImageLoaded{Ref: ref, Candidate: c, Err: err}
		}
	}
}

// RunCmd returns a run function backed by s.
func RunCmd(ctx context.Context, s *session.Session) func() tea.Cmd {
	return func() tea.Cmd {
		return func() tea.Msg {
			out, err := s.Run(ctx)
			msg := RunFinished{Outcome: out, Err: err}
			if out != nil {
				msg.ImageID = out.Request.ImageID
			}
			return msg
		}
	}
}

// Init starts the cursor blink when the path input has focus.
func (a App) Init() tea.Cmd {
	if a.focus == focusPath {
		return textinput.Blink
	}
	return nil
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case ImageLoaded:
		return a.handleImageLoaded(msg)

	case RunFinished:
		return a.handleRunFinished(msg)

	case RefreshTick:
		a.snap = a.ctrl.Snapshot()
		if a.snap.Image != nil && a.snap.Preview == nil && a.polls < previewPolls {
			a.polls++
			return a, refreshAfter(100 * time.Millisecond)
		}
		return a, nil

	case spinner.TickMsg:
		if !a.running {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a.updateInputs(msg)
}

func (a App) handleImageLoaded(msg ImageLoaded) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.Err, intake.ErrNotImage):
		a.notice = msg.Ref + " is not an image"
		return a, nil
	case msg.Err != nil:
		a.err = msg.Err
		return a, nil
	}

	if !a.ctrl.SelectImage(msg.Candidate) {
		a.notice = msg.Ref + " is not an image"
		return a, nil
	}
	a.notice = ""
	a.err = nil
	a.path.SetValue("")
	a.path.Blur()
	a.focus = focusNone
	a.polls = 0
	a.snap = a.ctrl.Snapshot()
	return a, refreshAfter(50 * time.Millisecond)
}

func (a App) handleRunFinished(msg RunFinished) (tea.Model, tea.Cmd) {
	a.running = false
	a.snap = a.ctrl.Snapshot()

	switch {
	case errors.Is(msg.Err, session.ErrBusy), errors.Is(msg.Err, session.ErrNoImage):
		a.notice = msg.Err.Error()
	case msg.Err != nil:
		a.err = msg.Err
	case msg.Outcome != nil && msg.Outcome.Stale:
		a.notice = "image changed while analyzing; result discarded"
	case a.snap.Image != nil && a.snap.Image.ID != msg.ImageID:
		// The session already ignored it; nothing to show.
		logging.Debug("ignoring result for replaced image", "image_id", msg.ImageID)
	default:
		a.notice = ""
	}
	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	switch a.focus {
	case focusPath:
		switch msg.String() {
		case "esc":
			a.path.Blur()
			a.focus = focusNone
			return a, nil
		case "enter":
			ref := a.path.Value()
			if ref == "" || a.open == nil {
				return a, nil
			}
			a.notice = "loading " + ref + "..."
			return a, a.open(ref)
		}
		return a.updateInputs(msg)

	case focusZoom:
		switch msg.String() {
		case "esc":
			a.zoom.Blur()
			a.focus = focusNone
			return a, nil
		case "enter", "tab":
			a.ctrl.SetZoom(a.zoom.Value())
			a.zoom.Blur()
			a.focus = focusNone
			a.snap = a.ctrl.Snapshot()
			return a, nil
		}
		return a.updateInputs(msg)
	}

	a.err = nil
	switch msg.String() {
	case "q":
		return a, tea.Quit

	case "o", "/":
		a.focus = focusPath
		a.path.Focus()
		return a, textinput.Blink

	case "z":
		a.focus = focusZoom
		a.zoom.SetValue("")
		a.zoom.Focus()
		return a, textinput.Blink

	case "1", "2", "3":
		return a.setMode(analysis.Modes()[msg.String()[0]-'1'])

	case "tab", "m":
		return a.setMode(a.snap.Mode.Next())

	case "enter", "r":
		if a.running || !a.snap.CanRun || a.run == nil {
			return a, nil
		}
		a.running = true
		a.notice = ""
		return a, tea.Batch(a.run(), a.spinner.Tick)
	}
	return a, nil
}

func (a App) setMode(m analysis.Mode) (tea.Model, tea.Cmd) {
	if err := a.ctrl.SetMode(m); err != nil {
		a.err = err
		return a, nil
	}
	a.snap = a.ctrl.Snapshot()
	return a, nil
}

func (a App) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.focus {
	case focusPath:
		a.path, cmd = a.path.Update(msg)
	case focusZoom:
		a.zoom, cmd = a.zoom.Update(msg)
	}
	return a, cmd
}

func refreshAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return RefreshTick{} })
}

// Snapshot returns the last session state the model rendered (for testing).
func (a App) Snapshot() session.Snapshot {
	return a.snap
}

// Running reports whether a run command is outstanding (for testing).
func (a App) Running() bool {
	return a.running
}
