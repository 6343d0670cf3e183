package tui

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kamilpajak/crestline/internal/client"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/session"
	"github.com/kamilpajak/crestline/pkg/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	result analysis.Result
	err    error
	calls  int
}

func (s *stubAnalyzer) Analyze(context.Context, client.Request) (analysis.Result, error) {
	s.calls++
	return s.result, s.err
}

// mockCmd tracks which command functions were called.
type mockCmd struct {
	opened []string
	runs   int
}

func (m *mockCmd) open(ref string) tea.Cmd {
	m.opened = append(m.opened, ref)
	return func() tea.Msg { return ImageLoaded{Ref: ref} }
}

func (m *mockCmd) run() tea.Cmd {
	m.runs++
	return func() tea.Msg { return RunFinished{} }
}

func candidate(t *testing.T, name string) *intake.Candidate {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	c, err := intake.FromBytes(name, "", buf.Bytes())
	require.NoError(t, err)
	return c
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	app, ok := m.(App)
	require.True(t, ok)
	return app, cmd
}

func TestAppStartsWithPathFocus(t *testing.T) {
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, nil, nil)

	assert.NotNil(t, app.Init())
	assert.Contains(t, app.View(), "No image selected")
	assert.Contains(t, app.View(), "esc cancel")
}

func TestAppOpensTypedPath(t *testing.T) {
	mock := &mockCmd{}
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, mock.open, mock.run)

	app, _ = update(t, app, key("scan.png"))
	app, cmd := update(t, app, key("enter"))

	require.NotNil(t, cmd)
	assert.Equal(t, []string{"scan.png"}, mock.opened)
}

func TestAppStagesLoadedImage(t *testing.T) {
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, nil, nil)

	app, cmd := update(t, app, ImageLoaded{Ref: "scan.png", Candidate: candidate(t, "scan.png")})
	assert.NotNil(t, cmd)
	assert.Equal(t, session.StateStaged, app.Snapshot().State)
	assert.True(t, app.Snapshot().CanRun)
	assert.Contains(t, app.View(), "scan.png")
	assert.Contains(t, app.View(), "press enter to run")
}

func TestAppIgnoresNonImage(t *testing.T) {
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, nil, nil)

	app, _ = update(t, app, ImageLoaded{Ref: "notes.txt", Err: intake.ErrNotImage})
	assert.Equal(t, session.StateEmpty, app.Snapshot().State)
	assert.Contains(t, app.View(), "notes.txt is not an image")

	app, _ = update(t, app, ImageLoaded{Ref: "missing.png", Err: errors.New("open missing.png: no such file")})
	assert.Contains(t, app.View(), "no such file")
}

func TestAppModeKeys(t *testing.T) {
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, nil, nil)
	app, _ = update(t, app, key("esc"))

	app, _ = update(t, app, key("2"))
	assert.Equal(t, analysis.ModeMeasure, sess.Mode())

	app, _ = update(t, app, key("3"))
	assert.Equal(t, analysis.ModeRecommend, sess.Mode())

	app, _ = update(t, app, key("tab"))
	assert.Equal(t, analysis.ModeSegment, sess.Mode())

	app, _ = update(t, app, key("1"))
	assert.Equal(t, analysis.ModeSegment, app.Snapshot().Mode)
}

func TestAppZoomInput(t *testing.T) {
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, nil, nil)
	app, _ = update(t, app, key("esc"))

	app, _ = update(t, app, key("z"))
	app, _ = update(t, app, key("1.5"))
	app, _ = update(t, app, key("enter"))
	assert.Equal(t, "1.5", sess.Snapshot().Zoom)

	app, _ = update(t, app, key("z"))
	app, _ = update(t, app, key("9"))
	app, _ = update(t, app, key("esc"))
	assert.Equal(t, "1.5", app.Snapshot().Zoom)
}

func TestAppRunOnlyWhenRunnable(t *testing.T) {
	mock := &mockCmd{}
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, mock.open, mock.run)
	app, _ = update(t, app, key("esc"))

	app, cmd := update(t, app, key("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, 0, mock.runs)

	app, _ = update(t, app, ImageLoaded{Ref: "scan.png", Candidate: candidate(t, "scan.png")})
	app, cmd = update(t, app, key("enter"))
	assert.NotNil(t, cmd)
	assert.True(t, app.Running())
	assert.Equal(t, 1, mock.runs)
	assert.Contains(t, app.View(), "Analyzing")

	// A second enter while running is ignored.
	app, _ = update(t, app, key("enter"))
	assert.Equal(t, 1, mock.runs)

	app, _ = update(t, app, RunFinished{})
	assert.False(t, app.Running())
}

func TestAppRendersResult(t *testing.T) {
	w := 5.1
	stub := &stubAnalyzer{result: &analysis.MeasureResult{HeightMM: 12.3, Widths: analysis.Widths{W2: &w}}}
	sess := session.New(session.Options{Analyzer: stub, Mode: analysis.ModeMeasure})
	app := NewApp(sess, nil, RunCmd(context.Background(), sess))

	app, _ = update(t, app, ImageLoaded{Ref: "scan.png", Candidate: candidate(t, "scan.png")})
	msg := RunCmd(context.Background(), sess)()()
	finished, ok := msg.(RunFinished)
	require.True(t, ok)
	assert.Equal(t, sess.Candidate().ID, finished.ImageID)

	app, _ = update(t, app, finished)
	view := app.View()
	assert.Contains(t, view, "MEASUREMENTS")
	assert.Contains(t, view, "12.3 mm")
	assert.Contains(t, view, "5.1 mm")
	assert.Contains(t, view, "No nerve")
}

func TestAppRendersServiceError(t *testing.T) {
	stub := &stubAnalyzer{err: &client.ServiceError{StatusCode: 500, Message: "Bad image"}}
	sess := session.New(session.Options{Analyzer: stub})
	app := NewApp(sess, nil, nil)

	app, _ = update(t, app, ImageLoaded{Ref: "scan.png", Candidate: candidate(t, "scan.png")})
	app, _ = update(t, app, RunCmd(context.Background(), sess)()())
	assert.Contains(t, app.View(), "Bad image")
}

func TestAppNoRecommendation(t *testing.T) {
	stub := &stubAnalyzer{result: &analysis.RecommendResult{BoneHeightMM: 7, BoneWidthMM: 4}}
	sess := session.New(session.Options{Analyzer: stub, Mode: analysis.ModeRecommend})
	app := NewApp(sess, nil, nil)

	app, _ = update(t, app, ImageLoaded{Ref: "scan.png", Candidate: candidate(t, "scan.png")})
	app, _ = update(t, app, RunCmd(context.Background(), sess)()())
	assert.Contains(t, app.View(), "No suitable implant found")
}

func TestAppQuit(t *testing.T) {
	sess := session.New(session.Options{Analyzer: &stubAnalyzer{}})
	app := NewApp(sess, nil, nil)

	// q types into the focused path input.
	app, _ = update(t, app, key("q"))
	app, _ = update(t, app, key("esc"))

	_, cmd := update(t, app, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
