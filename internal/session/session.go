// Package session holds the analysis workflow: one staged image, one
// selected mode and at most one request in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/internal/client"
	"github.com/kamilpajak/crestline/internal/display"
	"github.com/kamilpajak/crestline/internal/history"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/logging"
	"github.com/kamilpajak/crestline/pkg/analysis"
)

// Run is refused with one of these when the session cannot dispatch.
var (
	ErrBusy    = errors.New("an analysis is already in progress")
	ErrNoImage = errors.New("no image selected")
)

// State is the workflow state derived from the session fields.
type State string

const (
	StateEmpty   State = "empty"
	StateStaged  State = "staged"
	StateBusy    State = "busy"
	StateSettled State = "settled"
)

// Analyzer sends a request to the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, req client.Request) (analysis.Result, error)
}

// Recorder persists applied outcomes.
type Recorder interface {
	Save(ctx context.Context, e *history.Entry) error
}

// Options configures a Session.
type Options struct {
	Analyzer Analyzer
	Emitter  ProgressEmitter
	// Recorder is optional.
	Recorder Recorder
	Mode     analysis.Mode
	Zoom     string
	// NoPreview skips preview derivation for front ends that never show one.
	NoPreview bool
}

// Outcome describes how a dispatched request resolved.
type Outcome struct {
	Request Request
	Result  analysis.Result
	// Err is the request failure, normally a *client.ServiceError.
	Err error
	// Stale is set when the image was replaced while the request was in
	// flight; the response was discarded.
	Stale   bool
	Elapsed time.Duration
}

// Session is the state of one analysis workspace. Methods are safe for
// concurrent use; the lock is never held across the network call.
type Session struct {
	analyzer  Analyzer
	emitter   ProgressEmitter
	recorder  Recorder
	noPreview bool

	mu         sync.Mutex
	candidate  *intake.Candidate
	preview    *intake.Preview
	mode       analysis.Mode
	zoomText   string
	result     analysis.Result
	errMsg     string
	busy       bool
	dispatched int
}

// New creates a session in the Empty state.
func New(opts Options) *Session {
	mode := opts.Mode
	if !mode.Valid() {
		mode = analysis.ModeSegment
	}
	zoom := opts.Zoom
	if zoom == "" {
		zoom = analysis.DefaultZoomText
	}
	return &Session{
		analyzer:  opts.Analyzer,
		emitter:   opts.Emitter,
		recorder:  opts.Recorder,
		noPreview: opts.NoPreview,
		mode:      mode,
		zoomText:  zoom,
	}
}

// SelectImage stages c as the new image. Nil or non-image candidates are
// ignored and false is returned. Staging clears the previous result and error;
// a request still in flight for the previous image will be discarded.
func (s *Session) SelectImage(c *intake.Candidate) bool {
	if c == nil || !isImage(c) {
		return false
	}

	s.mu.Lock()
	s.candidate = c
	s.preview = nil
	s.result = nil
	s.errMsg = ""
	s.mu.Unlock()

	logging.Debug("image staged", "image", c.Name, "type", c.ContentType, "bytes", c.Size())
	s.emit(ProgressEvent{Type: EventImage, Image: c.Name})

	if s.noPreview {
		return true
	}
	go func() {
		p := <-intake.DerivePreview(c)
		s.mu.Lock()
		if s.candidate == c {
			s.preview = p
		}
		s.mu.Unlock()
	}()
	return true
}

// SetMode changes how the next request is built and how the current result
// is presented. It never dispatches a request.
func (s *Session) SetMode(m analysis.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("unknown mode %q", m)
	}
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()

	s.emit(ProgressEvent{Type: EventMode, Mode: m})
	return nil
}

// SetZoom stores the raw zoom text; it is parsed when a request is built.
func (s *Session) SetZoom(text string) {
	s.mu.Lock()
	s.zoomText = text
	s.mu.Unlock()
}

// IsBusy reports whether a request is in flight.
func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// CanRun reports whether Run would dispatch.
func (s *Session) CanRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.busy && s.candidate != nil
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.busy:
		return StateBusy
	case s.candidate == nil:
		return StateEmpty
	case s.result != nil || s.errMsg != "":
		return StateSettled
	default:
		return StateStaged
	}
}

// Mode returns the selected mode.
func (s *Session) Mode() analysis.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Candidate returns the staged image, or nil.
func (s *Session) Candidate() *intake.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidate
}

// Preview returns the derived preview once available.
func (s *Session) Preview() *intake.Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Result returns the last applied result, or nil.
func (s *Session) Result() analysis.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the last request failure message, or "".
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Run dispatches one analysis request for the staged image and applies the
// response. It returns ErrBusy or ErrNoImage without side effects when the
// session cannot dispatch. Request failures are reported in Outcome.Err and
// the session error, not as the returned error.
func (s *Session) Run(ctx context.Context) (*Outcome, error) {
	return s.RunObserved(ctx, nil)
}

// RunObserved is Run with an extra emitter that receives only this run's
// busy and completion events. A refused run emits nothing to obs.
func (s *Session) RunObserved(ctx context.Context, obs ProgressEmitter) (*Outcome, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	req, err := BuildRequest(s.candidate, s.mode, s.zoomText)
	if err != nil {
		s.mu.Unlock()
		return nil, ErrNoImage
	}
	s.busy = true
	s.errMsg = ""
	s.dispatched++
	s.mu.Unlock()

	logging.Info("dispatching analysis", "image", req.ImageName, "mode", req.Mode, "zoom", req.ZoomText)
	s.emitRun(obs, ProgressEvent{Type: EventBusy, Image: req.ImageName, Mode: req.Mode, Zoom: req.ZoomText})

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, req.Wire())
	out := &Outcome{Request: req, Result: result, Err: err, Elapsed: time.Since(start)}

	s.mu.Lock()
	s.busy = false
	switch {
	case s.candidate == nil || s.candidate.ID != req.ImageID:
		out.Stale = true
	case err != nil:
		s.errMsg = errorMessage(err)
	default:
		s.result = result
	}
	s.mu.Unlock()

	ev := ProgressEvent{Image: req.ImageName, Mode: req.Mode, Zoom: req.ZoomText, ElapsedMs: out.Elapsed.Milliseconds()}
	switch {
	case out.Stale:
		logging.Warn("discarding stale response", "image", req.ImageName, "image_id", req.ImageID)
		ev.Type = EventStale
	case err != nil:
		logging.Error("analysis failed", "image", req.ImageName, "mode", req.Mode, "err", errorDetail(err))
		ev.Type = EventError
		ev.Message = errorMessage(err)
	default:
		logging.Info("analysis complete", "image", req.ImageName, "mode", req.Mode, "elapsed", out.Elapsed)
		ev.Type = EventSettled
	}
	snap := s.Snapshot()
	ev.Snapshot = &snap
	s.emitRun(obs, ev)

	if !out.Stale {
		s.record(ctx, out)
	}
	return out, nil
}

func (s *Session) record(ctx context.Context, out *Outcome) {
	if s.recorder == nil {
		return
	}
	e := &history.Entry{
		ImageID:   out.Request.ImageID,
		ImageName: out.Request.ImageName,
		Mode:      out.Request.Mode,
		Zoom:      out.Request.Zoom,
		Result:    out.Result,
	}
	if out.Err != nil {
		e.Result = nil
		e.Error = errorMessage(out.Err)
	}
	if err := s.recorder.Save(context.WithoutCancel(ctx), e); err != nil {
		logging.Warn("failed to record analysis", "err", err)
	}
}

func (s *Session) emit(ev ProgressEvent) {
	if s.emitter != nil {
		s.emitter.Emit(ev)
	}
}

func (s *Session) emitRun(obs ProgressEmitter, ev ProgressEvent) {
	s.emit(ev)
	if obs != nil {
		obs.Emit(ev)
	}
}

// ImageInfo describes the staged image without its bytes.
type ImageInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
}

// Snapshot is a point-in-time copy of the session for rendering.
type Snapshot struct {
	State      State           `json:"state"`
	Mode       analysis.Mode   `json:"mode"`
	Zoom       string          `json:"zoom"`
	Busy       bool            `json:"busy"`
	CanRun     bool            `json:"can_run"`
	Image      *ImageInfo      `json:"image,omitempty"`
	Preview    *intake.Preview `json:"preview,omitempty"`
	Error      string          `json:"error,omitempty"`
	Display    display.Fields  `json:"display"`
	Dispatched int             `json:"dispatched"`
	Result     analysis.Result `json:"-"`
}

// Snapshot captures the session state and the current result interpreted
// under the selected mode.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:      s.stateLocked(),
		Mode:       s.mode,
		Zoom:       s.zoomText,
		Busy:       s.busy,
		CanRun:     !s.busy && s.candidate != nil,
		Preview:    s.preview,
		Error:      s.errMsg,
		Display:    display.Present(s.result, s.mode),
		Dispatched: s.dispatched,
		Result:     s.result,
	}
	if c := s.candidate; c != nil {
		snap.Image = &ImageInfo{ID: c.ID, Name: c.Name, ContentType: c.ContentType, Size: c.Size()}
	}
	return snap
}

// errorMessage is the user-facing text for a failed request.
func errorMessage(err error) string {
	var se *client.ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "Server error"
}

func errorDetail(err error) string {
	var se *client.ServiceError
	if errors.As(err, &se) {
		return se.Detail()
	}
	return err.Error()
}

func isImage(c *intake.Candidate) bool {
	return strings.HasPrefix(c.ContentType, "image/")
}
