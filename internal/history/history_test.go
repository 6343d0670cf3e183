package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/pkg/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func measureEntry(name string, height, w2, w6, w8 float64, at time.Time) *Entry {
	return &Entry{
		ImageID:   uuid.New(),
		ImageName: name,
		Mode:      analysis.ModeMeasure,
		Zoom:      0.78,
		Result: &analysis.MeasureResult{
			Image:    "data:image/png;base64,AAA",
			HeightMM: height,
			Widths:   analysis.Widths{W2: f(w2), W6: f(w6), W8: f(w8)},
		},
		CreatedAt: at,
	}
}

func openSQLite(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	a := measureEntry("a.png", 10, 5, 6, 7, base.Add(-3*time.Minute))
	b := measureEntry("b.png", 10.5, 5, 6, 7, base.Add(-2*time.Minute))
	c := measureEntry("c.png", 20, 9, 9, 9, base.Add(-1*time.Minute))
	seg := &Entry{
		ImageID:   uuid.New(),
		ImageName: "seg.png",
		Mode:      analysis.ModeSegment,
		Zoom:      1,
		Result:    &analysis.SegmentResult{DetectedBone: true},
		CreatedAt: base,
	}
	failed := &Entry{
		ImageID:   uuid.New(),
		ImageName: "bad.png",
		Mode:      analysis.ModeMeasure,
		Zoom:      0.78,
		Error:     "Bad image",
		CreatedAt: base.Add(time.Minute),
	}
	for _, e := range []*Entry{a, b, c, seg, failed} {
		require.NoError(t, s.Save(ctx, e))
		assert.NotEqual(t, uuid.Nil, e.ID)
	}

	t.Run("list newest first", func(t *testing.T) {
		entries, err := s.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 5)
		assert.Equal(t, "bad.png", entries[0].ImageName)
		assert.Equal(t, "a.png", entries[4].ImageName)
		assert.Nil(t, entries[0].Result)
		assert.Equal(t, "Bad image", entries[0].Error)

		limited, err := s.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("get restores the result", func(t *testing.T) {
		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ImageID, got.ImageID)
		assert.Equal(t, analysis.ModeMeasure, got.Mode)
		assert.InDelta(t, 0.78, got.Zoom, 1e-9)

		m, ok := got.Result.(*analysis.MeasureResult)
		require.True(t, ok)
		assert.InDelta(t, 10.0, m.HeightMM, 1e-9)
		require.NotNil(t, m.Widths.W6)
		assert.InDelta(t, 6.0, *m.Widths.W6, 1e-9)
		assert.Nil(t, m.CrestToNerveMM)

		gotSeg, err := s.Get(ctx, seg.ID)
		require.NoError(t, err)
		sr, ok := gotSeg.Result.(*analysis.SegmentResult)
		require.True(t, ok)
		assert.True(t, sr.DetectedBone)
		assert.False(t, sr.DetectedNerve)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("similar ranks by distance within the mode", func(t *testing.T) {
		matches, err := s.Similar(ctx, a.ID, 10)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, b.ID, matches[0].ID)
		assert.InDelta(t, 0.5, matches[0].Distance, 1e-4)
		assert.Equal(t, c.ID, matches[1].ID)
		assert.Greater(t, matches[1].Distance, matches[0].Distance)

		one, err := s.Similar(ctx, a.ID, 1)
		require.NoError(t, err)
		assert.Len(t, one, 1)
	})

	t.Run("similar without measurements", func(t *testing.T) {
		matches, err := s.Similar(ctx, seg.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)

		matches, err = s.Similar(ctx, failed.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("similar missing reference", func(t *testing.T) {
		_, err := s.Similar(ctx, uuid.New(), 10)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openSQLite(t))
}

func TestSQLiteMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	e := measureEntry("mem.png", 12, 4, 5, 6, time.Time{})
	require.NoError(t, s.Save(context.Background(), e))
	assert.False(t, e.CreatedAt.IsZero())

	entries, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	e := measureEntry("keep.png", 12, 4, 5, 6, time.Now())
	require.NoError(t, s.Save(context.Background(), e))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep.png", got.ImageName)
}

func TestSaveRejectsInvalidEntries(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, nil))
	assert.Error(t, s.Save(ctx, &Entry{Mode: "bogus", Error: "x"}))
	assert.Error(t, s.Save(ctx, &Entry{Mode: analysis.ModeSegment}))
}

func TestOpenDispatch(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)

	s, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 50, clampLimit(-1))
	assert.Equal(t, 50, clampLimit(1000))
	assert.Equal(t, 7, clampLimit(7))
}
