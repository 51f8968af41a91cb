package learner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"
)

const snapshotVersion = 1

// snapshotData is the on-disk form of a MemoryStore.
type snapshotData struct {
	Version  int               `json:"version"`
	Learners []snapshotLearner `json:"learners"`
}

type snapshotLearner struct {
	Learner  Learner   `json:"learner"`
	Weights  []Weight  `json:"weights"`
	Attempts []Attempt `json:"attempts"`
}

// WriteSnapshot writes the full store content to path. The file is written
// to a temporary name first and renamed so a crash never leaves a torn file.
func (s *MemoryStore) WriteSnapshot(path string) error {
	s.mu.RLock()
	data := snapshotData{Version: snapshotVersion, Learners: make([]snapshotLearner, 0, len(s.learners))}
	for _, rec := range s.learners {
		rec.mu.Lock()
		data.Learners = append(data.Learners, snapshotLearner{
			Learner:  rec.learner,
			Weights:  sortedWeights(rec.weights),
			Attempts: append([]Attempt(nil), rec.attempts...),
		})
		rec.mu.Unlock()
	}
	s.mu.RUnlock()

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the store content with the snapshot at path.
// A missing file leaves the store empty and is not an error.
func (s *MemoryStore) LoadSnapshot(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var data snapshotData
	if err := json.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if data.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", data.Version)
	}

	learners := make(map[string]*memRecord, len(data.Learners))
	for _, sl := range data.Learners {
		rec := &memRecord{
			learner:  sl.Learner,
			weights:  make(map[string]Weight, len(sl.Weights)),
			attempts: sl.Attempts,
		}
		for _, w := range sl.Weights {
			rec.weights[w.Topic] = w
		}
		learners[sl.Learner.ID] = rec
	}

	s.mu.Lock()
	s.learners = learners
	s.mu.Unlock()
	return nil
}

// Snapshotter periodically flushes a MemoryStore to disk on a cron schedule.
type Snapshotter struct {
	store *MemoryStore
	path  string
	cron  *cron.Cron
	mu    sync.Mutex
}

// NewSnapshotter creates a snapshotter. schedule is a standard cron spec or a
// descriptor such as "@every 1m".
func NewSnapshotter(store *MemoryStore, path, schedule string) (*Snapshotter, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	sn := &Snapshotter{
		store: store,
		path:  path,
		cron:  cron.New(),
	}
	if _, err := sn.cron.AddFunc(schedule, sn.flushLogged); err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	return sn, nil
}

// Start begins scheduled flushes.
func (sn *Snapshotter) Start() {
	sn.cron.Start()
	slog.Info("snapshotter started", "path", sn.path)
}

// Stop halts the schedule, waits for a running flush and writes a final snapshot.
func (sn *Snapshotter) Stop() error {
	<-sn.cron.Stop().Done()
	return sn.Flush()
}

// Flush writes a snapshot now.
func (sn *Snapshotter) Flush() error {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.store.WriteSnapshot(sn.path)
}

func (sn *Snapshotter) flushLogged() {
	if err := sn.Flush(); err != nil {
		slog.Error("snapshot flush failed", "path", sn.path, "error", err)
		return
	}
	slog.Debug("snapshot flushed", "path", sn.path)
}
