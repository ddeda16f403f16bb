// Package lock guards pipeline runs with a file-based advisory lock so
// independently scheduled invocations (cron, manual reruns) never overlap.
package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultStaleAfter is how old a lock record may get before a new acquirer
// treats the holder as crashed and reclaims the lock.
const DefaultStaleAfter = 3 * time.Hour

// Holder identifies the process that owns a lock.
type Holder struct {
	Pipeline   string    `json:"pipeline"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age returns how long the holder has held the lock as of now.
func (h Holder) Age(now time.Time) time.Duration {
	return now.Sub(h.AcquiredAt)
}

// FileLock is a filesystem lock scoped to a pipeline name. Acquisition is
// atomic across processes via O_EXCL creation of the lock file.
type FileLock struct {
	dir        string
	staleAfter time.Duration
	now        func() time.Time
}

// Option configures a FileLock.
type Option func(*FileLock)

// WithStaleAfter overrides the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(l *FileLock) { l.staleAfter = d }
}

// WithClock injects the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(l *FileLock) { l.now = now }
}

// New returns a FileLock storing lock records under dir.
func New(dir string, opts ...Option) *FileLock {
	l := &FileLock{
		dir:        dir,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *FileLock) path(pipeline string) string {
	return filepath.Join(l.dir, pipeline+".lock")
}

// Acquire attempts to take the lock for pipeline. When another live holder
// owns it, Acquire returns acquired=false and that holder's identity; this
// is not an error, the caller logs it and exits cleanly. A record older
// than the staleness threshold is treated as abandoned and reclaimed.
func (l *FileLock) Acquire(pipeline string) (bool, *Holder, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return false, nil, eris.Wrap(err, "creating lock directory")
	}

	record, err := l.newHolder(pipeline)
	if err != nil {
		return false, nil, err
	}

	if err := l.create(pipeline, record); err == nil {
		return true, record, nil
	} else if !os.IsExist(err) {
		return false, nil, eris.Wrapf(err, "creating lock file for %s", pipeline)
	}

	existing, readErr := l.read(pipeline)
	if readErr != nil {
		// An unreadable record may be a concurrent acquirer mid-write.
		// Fall back to the file's mtime for the staleness decision.
		age, statErr := l.fileAge(pipeline)
		if statErr != nil || age < l.staleAfter {
			zap.L().Warn("lock record unreadable, deferring to holder",
				zap.String("pipeline", pipeline),
				zap.Error(readErr))
			return false, &Holder{Pipeline: pipeline}, nil
		}
		zap.L().Warn("stale unreadable lock reclaimed",
			zap.String("pipeline", pipeline),
			zap.Duration("age", age))
		return l.reclaim(pipeline, record)
	}

	if existing.Age(l.now()) < l.staleAfter {
		return false, existing, nil
	}

	zap.L().Warn("stale lock reclaimed",
		zap.String("pipeline", pipeline),
		zap.Int("stale_pid", existing.PID),
		zap.Duration("age", existing.Age(l.now())))
	return l.reclaim(pipeline, record)
}

// Release deletes the lock record. Releasing a lock that is already gone
// is not an error.
func (l *FileLock) Release(pipeline string) error {
	if err := os.Remove(l.path(pipeline)); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "releasing lock for %s", pipeline)
	}
	return nil
}

func (l *FileLock) newHolder(pipeline string) (*Holder, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Holder{
		Pipeline:   pipeline,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: l.now().UTC(),
	}, nil
}

// create writes the record with O_EXCL so two concurrent acquirers cannot
// both observe "no lock" and proceed.
func (l *FileLock) create(pipeline string, h *Holder) error {
	f, err := os.OpenFile(l.path(pipeline), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(h); err != nil {
		f.Close()
		os.Remove(l.path(pipeline))
		return err
	}
	return f.Close()
}

// reclaim replaces an abandoned record via atomic rename.
func (l *FileLock) reclaim(pipeline string, h *Holder) (bool, *Holder, error) {
	tmp, err := os.CreateTemp(l.dir, pipeline+".lock.tmp")
	if err != nil {
		return false, nil, eris.Wrap(err, "creating temp lock file")
	}
	if err := json.NewEncoder(tmp).Encode(h); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return false, nil, eris.Wrap(err, "writing lock record")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return false, nil, eris.Wrap(err, "closing temp lock file")
	}
	if err := os.Rename(tmp.Name(), l.path(pipeline)); err != nil {
		os.Remove(tmp.Name())
		return false, nil, eris.Wrapf(err, "replacing stale lock for %s", pipeline)
	}
	return true, h, nil
}

func (l *FileLock) fileAge(pipeline string) (time.Duration, error) {
	info, err := os.Stat(l.path(pipeline))
	if err != nil {
		return 0, err
	}
	return l.now().Sub(info.ModTime()), nil
}

func (l *FileLock) read(pipeline string) (*Holder, error) {
	data, err := os.ReadFile(l.path(pipeline))
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, eris.Wrap(err, "decoding lock record")
	}
	return &h, nil
}
