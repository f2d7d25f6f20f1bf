package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRuns       = []byte("runs")
	bucketRunsByTime = []byte("runs_by_time")
)

// BoltStorage stores runs in BoltDB
type BoltStorage struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStorage opens or creates the database at path
func NewBoltStorage(path string) (*BoltStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketRunsByTime} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db, now: time.Now}, nil
}

// Create stores a new run. An empty ID is replaced by a fresh UUID and an
// empty status becomes pending.
func (s *BoltStorage) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = StatusPending
	}
	if !run.Status.Valid() {
		return fmt.Errorf("unknown run status %q", run.Status)
	}

	now := s.now()
	run.CreatedAt = now
	run.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		if runs.Get([]byte(run.ID)) != nil {
			return fmt.Errorf("run %s already exists", run.ID)
		}

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		if err := runs.Put([]byte(run.ID), data); err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}

		index := tx.Bucket(bucketRunsByTime)
		if err := index.Put(makeIndexKey(run.CreatedAt, run.ID), []byte(run.ID)); err != nil {
			return fmt.Errorf("failed to add to time index: %w", err)
		}

		return nil
	})
}

// Update replaces a stored run. A status change must be allowed by
// CanTransition, otherwise a *TransitionError is returned.
func (s *BoltStorage) Update(ctx context.Context, run *Run) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)

		data := runs.Get([]byte(run.ID))
		if data == nil {
			return ErrNotFound
		}

		var current Run
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to unmarshal run: %w", err)
		}

		if current.Status != run.Status && !CanTransition(current.Status, run.Status) {
			return &TransitionError{ID: run.ID, From: current.Status, To: run.Status}
		}

		run.CreatedAt = current.CreatedAt
		run.UpdatedAt = s.now()

		newData, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		if err := runs.Put([]byte(run.ID), newData); err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}

		return nil
	})
}

// Get retrieves a run by ID
func (s *BoltStorage) Get(ctx context.Context, id string) (*Run, error) {
	var run *Run

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		run = &Run{}
		return json.Unmarshal(data, run)
	})
	if err != nil {
		return nil, err
	}

	return run, nil
}

// List returns runs newest first without their per-number results
func (s *BoltStorage) List(ctx context.Context, filter ListFilter) ([]*Run, error) {
	runs := []*Run{}

	err := s.db.View(func(tx *bolt.Tx) error {
		runBucket := tx.Bucket(bucketRuns)
		c := tx.Bucket(bucketRunsByTime).Cursor()

		count := 0
		skipped := 0

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			data := runBucket.Get(v)
			if data == nil {
				continue
			}

			var run Run
			if err := json.Unmarshal(data, &run); err != nil {
				continue
			}

			if filter.Status != "" && run.Status != filter.Status {
				continue
			}

			if skipped < filter.Offset {
				skipped++
				continue
			}

			runs = append(runs, run.Brief())
			count++

			if filter.Limit > 0 && count >= filter.Limit {
				break
			}
		}

		return nil
	})

	return runs, err
}

// Delete removes a finished run
func (s *BoltStorage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)

		data := runs.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("failed to unmarshal run: %w", err)
		}
		if !run.Status.Terminal() {
			return ErrRunActive
		}

		if err := tx.Bucket(bucketRunsByTime).Delete(makeIndexKey(run.CreatedAt, run.ID)); err != nil {
			return err
		}
		return runs.Delete([]byte(id))
	})
}

// Stats returns run counts per status
func (s *BoltStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return nil
			}

			stats.Total++
			switch run.Status {
			case StatusPending:
				stats.Pending++
			case StatusRunning:
				stats.Running++
			case StatusCompleted:
				stats.Completed++
			case StatusCancelled:
				stats.Cancelled++
			case StatusFailed:
				stats.Failed++
			}
			return nil
		})
	})

	return stats, err
}

// CountByStatus returns run counts keyed by status name
func (s *BoltStorage) CountByStatus(ctx context.Context) (map[string]int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{
		string(StatusPending):   int(stats.Pending),
		string(StatusRunning):   int(stats.Running),
		string(StatusCompleted): int(stats.Completed),
		string(StatusCancelled): int(stats.Cancelled),
		string(StatusFailed):    int(stats.Failed),
	}, nil
}

// CleanupFinished removes finished runs whose FinishedAt is older than maxAge
func (s *BoltStorage) CleanupFinished(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-maxAge)
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		index := tx.Bucket(bucketRunsByTime)

		var toDelete []Run

		err := runs.ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return nil
			}
			if run.Status.Terminal() && run.FinishedAt != nil && run.FinishedAt.Before(cutoff) {
				toDelete = append(toDelete, run)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, run := range toDelete {
			if err := index.Delete(makeIndexKey(run.CreatedAt, run.ID)); err != nil {
				return err
			}
			if err := runs.Delete([]byte(run.ID)); err != nil {
				return err
			}
			deleted++
		}

		return nil
	})

	return deleted, err
}

// FailInterrupted marks runs left pending or running by a previous process
// as failed. It returns the number of runs changed.
func (s *BoltStorage) FailInterrupted(ctx context.Context) (int, error) {
	changed := 0
	now := s.now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)

		var stale []Run
		err := runs.ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return nil
			}
			if !run.Status.Terminal() {
				stale = append(stale, run)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, run := range stale {
			run.Status = StatusFailed
			run.Error = "interrupted by shutdown"
			run.Input = nil
			run.UpdatedAt = now
			run.FinishedAt = &now

			data, err := json.Marshal(&run)
			if err != nil {
				return fmt.Errorf("failed to marshal run: %w", err)
			}
			if err := runs.Put([]byte(run.ID), data); err != nil {
				return err
			}
			changed++
		}
		return nil
	})

	return changed, err
}

// Close closes the database connection
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// DB returns the underlying bolt.DB instance
func (s *BoltStorage) DB() *bolt.DB {
	return s.db
}

// Path returns the database file path
func (s *BoltStorage) Path() string {
	return s.db.Path()
}

// makeIndexKey creates a sortable key from timestamp and ID
func makeIndexKey(t time.Time, id string) []byte {
	// Fixed-width UTC timestamp keeps lexical order equal to time order
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
