package session

import (
	"bytes"
	"testing"

	"github.com/kamilpajak/crestline/pkg/analysis"
	"github.com/stretchr/testify/assert"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{500, "500ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{1500, "1.5s"},
		{10000, "10.0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatElapsed(tt.ms), "formatElapsed(%d)", tt.ms)
	}
}

func TestTextEmitter(t *testing.T) {
	tests := []struct {
		name string
		ev   ProgressEvent
		want string
	}{
		{
			name: "image",
			ev:   ProgressEvent{Type: EventImage, Image: "scan.png"},
			want: "Staged scan.png\n",
		},
		{
			name: "busy",
			ev:   ProgressEvent{Type: EventBusy, Image: "scan.png", Mode: analysis.ModeMeasure, Zoom: "0.78"},
			want: "Analyzing scan.png (mode=measure, zoom=0.78)...\n",
		},
		{
			name: "settled",
			ev:   ProgressEvent{Type: EventSettled, ElapsedMs: 2300},
			want: "Analysis complete (2.3s)\n",
		},
		{
			name: "stale",
			ev:   ProgressEvent{Type: EventStale, Image: "old.png"},
			want: "Discarded result for old.png: image was replaced\n",
		},
		{
			name: "error",
			ev:   ProgressEvent{Type: EventError, Message: "Bad image"},
			want: "Error: Bad image\n",
		},
		{
			name: "mode is silent",
			ev:   ProgressEvent{Type: EventMode, Mode: analysis.ModeRecommend},
			want: "",
		},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		(&TextEmitter{W: &buf}).Emit(tt.ev)
		assert.Equal(t, tt.want, buf.String(), tt.name)
	}
}

func TestMultiEmitter(t *testing.T) {
	var got []string
	record := EmitterFunc(func(ev ProgressEvent) { got = append(got, ev.Type) })

	MultiEmitter{record, nil, record}.Emit(ProgressEvent{Type: EventBusy})

	assert.Equal(t, []string{EventBusy, EventBusy}, got)
}
