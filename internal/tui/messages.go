// Package tui provides the Bubble Tea front end for an analysis session.
package tui

import (
	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/internal/intake"
	"github.com/kamilpajak/crestline/internal/session"
)

// ImageLoaded is sent when an image reference has been resolved.
type ImageLoaded struct {
	Ref       string
	Candidate *intake.Candidate
	Err       error
}

// RunFinished is sent when a dispatched analysis resolves.
type RunFinished struct {
	ImageID uuid.UUID // image the request was built from, for the stale check
	Outcome *session.Outcome
	Err     error
}

// RefreshTick asks the model to re-read the session, e.g. once a preview
// has been derived.
type RefreshTick struct{}
