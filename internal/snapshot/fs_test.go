package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/refresh-cli/internal/model"
)

func newFS(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func pages(text string) []model.Page {
	return []model.Page{{URL: "https://v.example/hours", Text: text, CapturedAt: time.Now()}}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	s := newFS(t)

	require.NoError(t, s.Write("blue-door", pages("Mon 9-5")))

	snap, err := s.Read("blue-door", model.GenerationCurrent)
	require.NoError(t, err)
	assert.Equal(t, "blue-door", snap.VenueID)
	require.Len(t, snap.Pages, 1)
	assert.Equal(t, "Mon 9-5", snap.Pages[0].Text)
	assert.NotEmpty(t, snap.Fingerprint)
}

func TestWrite_LastWriterWins(t *testing.T) {
	s := newFS(t)

	require.NoError(t, s.Write("v1", pages("old")))
	require.NoError(t, s.Write("v1", pages("new")))

	snap, err := s.Read("v1", model.GenerationCurrent)
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Pages[0].Text)
}

func TestRead_NotFound(t *testing.T) {
	s := newFS(t)

	_, err := s.Read("ghost", model.GenerationCurrent)
	assert.ErrorIs(t, err, ErrNotFound)

	// Missing previous snapshot is the same expected state.
	_, err = s.Read("ghost", model.GenerationPrevious)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRead_CorruptCurrentIsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "current", "v1.json"), []byte("{not json"), 0o644))

	_, err = s.Read("v1", model.GenerationCurrent)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRead_CorruptPreviousSurfacesError(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "previous", "v1.json"), []byte("{not json"), 0o644))

	_, err = s.Read("v1", model.GenerationPrevious)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRotate_MovesCurrentToPrevious(t *testing.T) {
	s := newFS(t)
	day1 := time.Date(2026, 8, 26, 7, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write("v1", pages("day one")))
	require.NoError(t, s.Rotate(day1)) // baseline: previous was empty

	require.NoError(t, s.Write("v1", pages("day one refetch")))
	require.NoError(t, s.Rotate(day2))

	// Previous now holds what current held; current is empty.
	prev, err := s.Read("v1", model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, "day one refetch", prev.Pages[0].Text)

	_, err = s.Read("v1", model.GenerationCurrent)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRotate_Idempotent(t *testing.T) {
	s := newFS(t)
	day1 := time.Date(2026, 8, 26, 7, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write("v1", pages("day one")))
	require.NoError(t, s.Rotate(day1))
	require.NoError(t, s.Write("v1", pages("day two")))
	require.NoError(t, s.Rotate(day2))

	// Second rotation on the same day must not touch previous.
	require.NoError(t, s.Write("v1", pages("day two refetch")))
	require.NoError(t, s.Rotate(day2))

	prev, err := s.Read("v1", model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, "day two", prev.Pages[0].Text)

	cur, err := s.Read("v1", model.GenerationCurrent)
	require.NoError(t, err)
	assert.Equal(t, "day two refetch", cur.Pages[0].Text)
}

func TestRotate_SameCalendarDayLaterClock(t *testing.T) {
	s := newFS(t)
	morning := time.Date(2026, 8, 27, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 27, 22, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write("v1", pages("content")))
	require.NoError(t, s.Rotate(morning))

	prevBefore, err := s.List(model.GenerationPrevious)
	require.NoError(t, err)

	require.NoError(t, s.Rotate(evening))

	prevAfter, err := s.List(model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, prevBefore, prevAfter)
}

func TestRotate_BaselineKeepsCurrent(t *testing.T) {
	s := newFS(t)
	day := time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write("v1", pages("cold start")))
	require.NoError(t, s.Write("v2", pages("cold start")))
	require.NoError(t, s.Rotate(day))

	// Baseline copies rather than moves: both generations populated.
	for _, gen := range []model.Generation{model.GenerationCurrent, model.GenerationPrevious} {
		ids, err := s.List(gen)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1", "v2"}, ids, "generation %s", gen)
	}
}

func TestRotate_ReplacesStalePrevious(t *testing.T) {
	s := newFS(t)
	day1 := time.Date(2026, 8, 25, 7, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 26, 7, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write("v1", pages("gen1")))
	require.NoError(t, s.Rotate(day1))
	require.NoError(t, s.Write("v1", pages("gen2")))
	require.NoError(t, s.Rotate(day2))
	require.NoError(t, s.Write("v1", pages("gen3")))
	require.NoError(t, s.Rotate(day3))

	prev, err := s.Read("v1", model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, "gen3", prev.Pages[0].Text)
}

func TestRotate_CorruptMarkerRotatesAgain(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)
	day := time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write("v1", pages("one")))
	require.NoError(t, s.Rotate(day))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.json"), []byte("garbage"), 0o644))

	// Unknown marker date: rotating again is the safe choice.
	require.NoError(t, s.Write("v1", pages("two")))
	require.NoError(t, s.Rotate(day))

	prev, err := s.Read("v1", model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, "two", prev.Pages[0].Text)
}

func TestList_Sorted(t *testing.T) {
	s := newFS(t)

	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Write(id, pages("x")))
	}

	ids, err := s.List(model.GenerationCurrent)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}
