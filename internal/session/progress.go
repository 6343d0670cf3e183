package session

import (
	"fmt"
	"io"

	"github.com/kamilpajak/crestline/pkg/analysis"
)

// Progress event types.
const (
	EventImage   = "image"   // a new image was staged
	EventMode    = "mode"    // the interpretation mode changed
	EventBusy    = "busy"    // a request was dispatched
	EventSettled = "settled" // a result was applied
	EventError   = "error"   // the request failed
	EventStale   = "stale"   // a response arrived for a replaced image and was dropped
	EventInfo    = "info"
)

// ProgressEvent represents a single lifecycle update of a session.
type ProgressEvent struct {
	Type      string        `json:"type"`
	Message   string        `json:"message,omitempty"`
	Mode      analysis.Mode `json:"mode,omitempty"`
	Zoom      string        `json:"zoom,omitempty"`
	Image     string        `json:"image,omitempty"`
	ElapsedMs int64         `json:"elapsed_ms,omitempty"`
	Snapshot  *Snapshot     `json:"snapshot,omitempty"`
}

// ProgressEmitter receives progress events from a session.
type ProgressEmitter interface {
	Emit(event ProgressEvent)
}

// TextEmitter formats progress events as human-readable text for CLI output.
type TextEmitter struct {
	W io.Writer
}

// Emit writes a formatted progress line to the underlying writer.
func (e *TextEmitter) Emit(ev ProgressEvent) {
	switch ev.Type {
	case EventImage:
		fmt.Fprintf(e.W, "Staged %s\n", ev.Image)
	case EventBusy:
		fmt.Fprintf(e.W, "Analyzing %s (mode=%s, zoom=%s)...\n", ev.Image, ev.Mode, ev.Zoom)
	case EventSettled:
		fmt.Fprintf(e.W, "Analysis complete (%s)\n", formatElapsed(ev.ElapsedMs))
	case EventStale:
		fmt.Fprintf(e.W, "Discarded result for %s: image was replaced\n", ev.Image)
	case EventInfo:
		fmt.Fprintf(e.W, "  %s\n", ev.Message)
	case EventError:
		fmt.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter []ProgressEmitter

// Emit forwards ev to every non-nil emitter.
func (m MultiEmitter) Emit(ev ProgressEvent) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}

// EmitterFunc adapts a function to ProgressEmitter.
type EmitterFunc func(ProgressEvent)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev ProgressEvent) { f(ev) }

func formatElapsed(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
