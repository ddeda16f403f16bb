package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuewatch/refresh-cli/internal/fingerprint"
	"github.com/venuewatch/refresh-cli/internal/model"
)

const (
	currentDir  = "current"
	previousDir = "previous"
	markerFile  = "marker.json"
	snapExt     = ".json"
)

// marker records when the current generation was last rotated into previous.
type marker struct {
	LastRotated string `json:"last_rotated"` // 2006-01-02
}

// FSStore is the filesystem-backed snapshot store. Snapshot writes and the
// marker update go through temp-file-plus-rename so a crash mid-write never
// leaves a partially visible snapshot.
type FSStore struct {
	root string
}

// NewFSStore opens (creating if needed) a snapshot store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	for _, sub := range []string{currentDir, previousDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, eris.Wrapf(err, "snapshot: create %s dir", sub)
		}
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) genDir(gen model.Generation) string {
	if gen == model.GenerationPrevious {
		return filepath.Join(s.root, previousDir)
	}
	return filepath.Join(s.root, currentDir)
}

func (s *FSStore) snapPath(venueID string, gen model.Generation) string {
	return filepath.Join(s.genDir(gen), venueID+snapExt)
}

func (s *FSStore) Rotate(today time.Time) error {
	log := zap.L().With(zap.String("date", dateOf(today)))

	m, err := s.readMarker()
	if err != nil {
		return err
	}
	if m != nil && m.LastRotated == dateOf(today) {
		log.Debug("snapshot: rotation already done today")
		return nil
	}

	currentIDs, err := s.List(model.GenerationCurrent)
	if err != nil {
		return err
	}
	previousIDs, err := s.List(model.GenerationPrevious)
	if err != nil {
		return err
	}

	if len(previousIDs) == 0 && len(currentIDs) > 0 {
		// Establish baseline: first rotation after a cold start copies
		// current into previous so the delta run has a comparison target
		// instead of flagging the whole registry as new.
		for _, id := range currentIDs {
			if err := copyFile(s.snapPath(id, model.GenerationCurrent), s.snapPath(id, model.GenerationPrevious)); err != nil {
				return eris.Wrapf(err, "snapshot: baseline copy %s", id)
			}
		}
		log.Info("snapshot: established baseline", zap.Int("snapshots", len(currentIDs)))
		return s.writeMarker(today)
	}

	for _, id := range currentIDs {
		src := s.snapPath(id, model.GenerationCurrent)
		dst := s.snapPath(id, model.GenerationPrevious)
		// Rename replaces any prior snapshot for the same venue.
		if err := os.Rename(src, dst); err != nil {
			return eris.Wrapf(err, "snapshot: rotate %s", id)
		}
	}
	log.Info("snapshot: rotated generations", zap.Int("snapshots", len(currentIDs)))

	return s.writeMarker(today)
}

func (s *FSStore) Write(venueID string, pages []model.Page) error {
	snap := model.Snapshot{
		VenueID:     venueID,
		Pages:       pages,
		CapturedAt:  time.Now().UTC(),
		Fingerprint: fingerprint.Fingerprint(pages),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrapf(err, "snapshot: marshal %s", venueID)
	}
	return s.atomicWrite(s.snapPath(venueID, model.GenerationCurrent), data)
}

func (s *FSStore) Read(venueID string, gen model.Generation) (*model.Snapshot, error) {
	data, err := os.ReadFile(s.snapPath(venueID, gen))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: read %s/%s", gen, venueID)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		if gen == model.GenerationCurrent {
			// Unreadable current snapshot reads as missing so the upstream
			// fetcher re-captures it.
			zap.L().Warn("snapshot: corrupt current snapshot, treating as not found",
				zap.String("venue", venueID),
				zap.Error(err),
			)
			return nil, ErrNotFound
		}
		// Corrupt previous snapshots surface the error; the delta detector
		// classifies the venue as changed rather than silently skipping it.
		return nil, eris.Wrapf(err, "snapshot: corrupt %s/%s", gen, venueID)
	}
	return &snap, nil
}

func (s *FSStore) List(gen model.Generation) ([]string, error) {
	entries, err := os.ReadDir(s.genDir(gen))
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: list %s", gen)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), snapExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FSStore) readMarker() (*marker, error) {
	data, err := os.ReadFile(filepath.Join(s.root, markerFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: read marker")
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		// A corrupt marker means "rotation date unknown"; rotating again is
		// safe, skipping silently is not.
		zap.L().Warn("snapshot: corrupt marker, assuming rotation due", zap.Error(err))
		return nil, nil
	}
	return &m, nil
}

func (s *FSStore) writeMarker(today time.Time) error {
	data, err := json.Marshal(marker{LastRotated: dateOf(today)})
	if err != nil {
		return eris.Wrap(err, "snapshot: marshal marker")
	}
	return s.atomicWrite(filepath.Join(s.root, markerFile), data)
}

// atomicWrite writes data to path via a temp file and rename so partial
// writes are never visible to concurrent readers.
func (s *FSStore) atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "snapshot: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "snapshot: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "snapshot: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "snapshot: rename into %s", path)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
