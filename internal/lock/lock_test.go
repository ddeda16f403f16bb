package lock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_FirstAcquirerWins(t *testing.T) {
	l := New(t.TempDir())

	ok, holder, err := l.Acquire("refresh")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, holder)
	assert.Equal(t, os.Getpid(), holder.PID)
	assert.Equal(t, "refresh", holder.Pipeline)
}

func TestAcquire_FreshHolderBlocksSecondAcquirer(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	second := New(dir)

	ok, _, err := first.Acquire("refresh")
	require.NoError(t, err)
	require.True(t, ok)

	ok, holder, err := second.Acquire("refresh")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, holder)
	assert.Equal(t, os.Getpid(), holder.PID)
}

func TestAcquire_StaleHolderIsReclaimed(t *testing.T) {
	dir := t.TempDir()

	past := time.Now().Add(-4 * time.Hour)
	stale := New(dir, WithClock(func() time.Time { return past }))
	ok, _, err := stale.Acquire("refresh")
	require.NoError(t, err)
	require.True(t, ok)

	fresh := New(dir)
	ok, holder, err := fresh.Acquire("refresh")
	require.NoError(t, err)
	assert.True(t, ok, "holder older than threshold should be reclaimed")
	assert.WithinDuration(t, time.Now(), holder.AcquiredAt, time.Minute)
}

func TestAcquire_BelowThresholdIsNotReclaimed(t *testing.T) {
	dir := t.TempDir()

	recent := time.Now().Add(-10 * time.Minute)
	first := New(dir, WithClock(func() time.Time { return recent }))
	ok, _, err := first.Acquire("refresh")
	require.NoError(t, err)
	require.True(t, ok)

	second := New(dir)
	ok, holder, err := second.Acquire("refresh")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.WithinDuration(t, recent, holder.AcquiredAt, time.Minute)
}

func TestAcquire_FreshCorruptRecordBlocks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "refresh.lock"), []byte("{garbage"), 0o644))

	l := New(dir)
	ok, _, err := l.Acquire("refresh")
	require.NoError(t, err)
	assert.False(t, ok, "a recent record defers even when unreadable")
}

func TestAcquire_StaleCorruptRecordIsReclaimed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refresh.lock")
	require.NoError(t, os.WriteFile(path, []byte("{garbage"), 0o644))
	old := time.Now().Add(-5 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	l := New(dir)
	ok, _, err := l.Acquire("refresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRelease_AllowsReacquire(t *testing.T) {
	l := New(t.TempDir())

	ok, _, err := l.Acquire("refresh")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release("refresh"))

	ok, _, err = l.Acquire("refresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRelease_MissingLockIsNoError(t *testing.T) {
	l := New(t.TempDir())
	assert.NoError(t, l.Release("refresh"))
}

func TestAcquire_MutualExclusionUnderContention(t *testing.T) {
	dir := t.TempDir()

	const contenders = 16
	var wg sync.WaitGroup
	acquired := make(chan int, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ok, _, err := New(dir).Acquire("refresh")
			require.NoError(t, err)
			if ok {
				acquired <- id
			}
		}(i)
	}
	wg.Wait()
	close(acquired)

	var winners int
	for range acquired {
		winners++
	}
	assert.Equal(t, 1, winners, "exactly one contender should acquire")
}

func TestAcquire_DistinctPipelinesAreIndependent(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	ok, _, err := l.Acquire("refresh")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = l.Acquire("backfill")
	require.NoError(t, err)
	assert.True(t, ok)
}
