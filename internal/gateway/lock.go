package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shirou/gopsutil/v4/process"
)

// lockRecord is the on-disk content of the analysis lock.
type lockRecord struct {
	PID int     `json:"pid"`
	TS  float64 `json:"ts"`
	// Token identifies one acquisition so a holder never releases a lock
	// that was reclaimed from it.
	Token string `json:"token,omitempty"`
}

// Lock is a process-wide exclusive analysis lock backed by a file, so that
// separate server processes sharing the output directory exclude each other.
type Lock struct {
	path   string
	ttl    time.Duration
	clock  clockwork.Clock
	alive  func(pid int) bool
	pid    int
	logger *slog.Logger

	// mu serializes acquisition within this process.
	mu sync.Mutex
}

// NewLock creates a lock at path. Records older than ttl, or held by a dead
// process, are considered stale.
func NewLock(path string, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger) *Lock {
	return &Lock{
		path:   path,
		ttl:    ttl,
		clock:  clock,
		alive:  pidAlive,
		pid:    os.Getpid(),
		logger: logger,
	}
}

func pidAlive(pid int) bool {
	ok, err := process.PidExists(int32(pid)) //nolint:gosec // pids fit in int32
	return err == nil && ok
}

// errBusy marks a lock held by another analysis.
var errBusy = errors.New("analysis lock held")

// Acquire takes the lock or fails with a busy error. The returned function
// releases it.
func (l *Lock) Acquire() (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, internal("Unable to acquire analysis lock.", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		token, err := l.create()
		if err == nil {
			return func() { l.release(token) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, internal("Unable to acquire analysis lock.", err)
		}
		if !l.CleanupStale() {
			break
		}
	}
	return nil, &Error{
		Status:     http.StatusServiceUnavailable,
		Message:    "Analyzer is busy. Try again soon.",
		Reason:     "busy",
		RetryAfter: 30 * time.Second,
		Err:        errBusy,
	}
}

// create writes a complete record to a temporary file and links it into
// place, so the lock path never exists with a partial record. The link fails
// with os.ErrExist while another holder owns the lock.
func (l *Lock) create() (string, error) {
	rec := lockRecord{
		PID:   l.pid,
		TS:    float64(l.clock.Now().UnixNano()) / 1e9,
		Token: uuid.NewString(),
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".analysis-lock-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(rec); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write lock: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write lock: %w", err)
	}
	if err := os.Link(tmp.Name(), l.path); err != nil {
		return "", err
	}
	return rec.Token, nil
}

// release removes the lock only while it still carries token.
func (l *Lock) release(token string) {
	rec, err := l.read()
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil || rec.Token != token {
		l.logger.Warn("analysis lock no longer ours, leaving it", "path", l.path, "error", err)
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("failed to release analysis lock", "path", l.path, "error", err)
	}
}

func (l *Lock) read() (lockRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lockRecord{}, err
	}
	return decodeLock(data)
}

func decodeLock(data []byte) (lockRecord, error) {
	var rec lockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode lock: %w", err)
	}
	return rec, nil
}

// CleanupStale removes the lock file when its holder is dead or it has
// outlived the TTL. An unreadable record counts as held until the file itself
// is older than the TTL. It reports whether the lock is now free.
func (l *Lock) CleanupStale() bool {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		l.logger.Warn("failed to read analysis lock", "path", l.path, "error", err)
		return false
	}

	rec, err := decodeLock(data)
	if err != nil {
		info, statErr := os.Stat(l.path)
		if statErr != nil || l.clock.Since(info.ModTime()) < l.ttl {
			return false
		}
	} else if rec.PID > 0 && !l.stale(rec) {
		return false
	}
	return l.evict(data, rec)
}

// evict moves the lock aside and deletes it only if it still holds the stale
// data; a lock taken by someone else in the meantime is put back.
func (l *Lock) evict(stale []byte, rec lockRecord) bool {
	grave := fmt.Sprintf("%s.stale-%s", l.path, uuid.NewString())
	if err := os.Rename(l.path, grave); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true
		}
		l.logger.Warn("failed to remove stale analysis lock", "path", l.path, "error", err)
		return false
	}
	defer os.Remove(grave)

	moved, err := os.ReadFile(grave)
	if err != nil || !bytes.Equal(moved, stale) {
		if err := os.Link(grave, l.path); err != nil {
			l.logger.Warn("failed to restore analysis lock", "path", l.path, "error", err)
		}
		return false
	}
	l.logger.Info("removed stale analysis lock", "path", l.path, "pid", rec.PID)
	return true
}

func (l *Lock) stale(rec lockRecord) bool {
	if !l.alive(rec.PID) {
		return true
	}
	held := time.Duration((float64(l.clock.Now().UnixNano())/1e9 - rec.TS) * float64(time.Second))
	return held >= l.ttl
}
