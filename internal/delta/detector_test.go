package delta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/snapshot"
)

func page(text string) []model.Page {
	return []model.Page{{URL: "https://v.example", Text: text}}
}

func TestDetect_NewVenue(t *testing.T) {
	store := snapshot.NewMemStore()
	require.NoError(t, store.Write("v1", page("anything at all")))

	records, err := NewDetector(store).Detect()
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, model.ClassificationNew, records[0].Classification)
	assert.Empty(t, records[0].PreviousFingerprint)
}

func TestDetect_Unchanged(t *testing.T) {
	store := snapshot.NewMemStore()
	store.SeedPrevious("v1", page("Mon 9-5, Tue 10-6"))
	require.NoError(t, store.Write("v1", page("Mon 9-5, Tue 10-6")))

	records, err := NewDetector(store).Detect()
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, model.ClassificationUnchanged, records[0].Classification)
}

func TestDetect_UnchangedDespiteEmbeddedDate(t *testing.T) {
	store := snapshot.NewMemStore()
	store.SeedPrevious("v1", page("Updated 2026-08-26. Mon 9-5."))
	require.NoError(t, store.Write("v1", page("Updated 2026-08-27. Mon 9-5.")))

	records, err := NewDetector(store).Detect()
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, model.ClassificationUnchanged, records[0].Classification)
}

func TestDetect_Changed(t *testing.T) {
	store := snapshot.NewMemStore()
	store.SeedPrevious("v1", page("Mon 9-5"))
	require.NoError(t, store.Write("v1", page("Mon 9-8")))

	records, err := NewDetector(store).Detect()
	require.NoError(t, err)

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, model.ClassificationChanged, rec.Classification)
	assert.NotEmpty(t, rec.CurrentFingerprint)
	assert.NotEmpty(t, rec.PreviousFingerprint)
	assert.NotEqual(t, rec.CurrentFingerprint, rec.PreviousFingerprint)
}

func TestDetect_CorruptPreviousForcesChanged(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write("v1", page("Mon 9-5")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "previous", "v1.json"), []byte("{broken"), 0o644))

	records, err := NewDetector(store).Detect()
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, model.ClassificationChanged, records[0].Classification)
}

func TestDetect_DisappearedVenueProducesNoRecord(t *testing.T) {
	store := snapshot.NewMemStore()
	store.SeedPrevious("gone", page("used to exist"))
	require.NoError(t, store.Write("still-here", page("content")))

	records, err := NewDetector(store).Detect()
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "still-here", records[0].VenueID)
}

func TestDetect_OrderedByVenueID(t *testing.T) {
	store := snapshot.NewMemStore()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, store.Write(id, page(id)))
	}

	records, err := NewDetector(store).Detect()
	require.NoError(t, err)

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.VenueID
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

func TestQueue_ExcludesUnchanged(t *testing.T) {
	records := []model.DeltaRecord{
		{VenueID: "a", Classification: model.ClassificationNew},
		{VenueID: "b", Classification: model.ClassificationUnchanged},
		{VenueID: "c", Classification: model.ClassificationChanged},
	}

	queue := Queue(records)
	require.Len(t, queue, 2)
	assert.Equal(t, "a", queue[0].VenueID)
	assert.Equal(t, "c", queue[1].VenueID)
}
