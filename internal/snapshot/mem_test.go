package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/refresh-cli/internal/model"
)

func TestMemStore_RotateMatchesFSBehavior(t *testing.T) {
	s := NewMemStore()
	day1 := time.Date(2026, 8, 26, 7, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write("v1", pages("one")))
	require.NoError(t, s.Rotate(day1)) // baseline copy

	cur, err := s.Read("v1", model.GenerationCurrent)
	require.NoError(t, err)
	assert.Equal(t, "one", cur.Pages[0].Text)

	require.NoError(t, s.Write("v1", pages("two")))
	require.NoError(t, s.Rotate(day2))

	prev, err := s.Read("v1", model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, "two", prev.Pages[0].Text)

	_, err = s.Read("v1", model.GenerationCurrent)
	assert.ErrorIs(t, err, ErrNotFound)

	// Same-day rotation is a no-op.
	require.NoError(t, s.Write("v1", pages("three")))
	require.NoError(t, s.Rotate(day2))
	cur, err = s.Read("v1", model.GenerationCurrent)
	require.NoError(t, err)
	assert.Equal(t, "three", cur.Pages[0].Text)
}

func TestMemStore_SeedPrevious(t *testing.T) {
	s := NewMemStore()
	s.SeedPrevious("v1", pages("seeded"))

	prev, err := s.Read("v1", model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, "seeded", prev.Pages[0].Text)

	ids, err := s.List(model.GenerationPrevious)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, ids)
}
