// Package staging implements the StagingStore: per-module active/staging/
// backup file slots with an atomic, crash-consistent commit protocol.
//
// The three byte slots live as plain files, one per module, under
// modules/<name>/{active,staging,backup}.bin. A bbolt database alongside
// them is the commit journal: before the
// rename sequence that publishes a new active slot, a commit record is
// written and synced into bbolt; recover() on start-up consults that
// record, not file mtimes or existence alone, to classify each module as
// pre-commit or post-commit.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var journalBucket = []byte("commits")

// ErrBusy is returned by OpenStaging when a staging write is already in
// progress for the same module.
var ErrBusy = errors.New("staging: busy")

// commitState records, per module, whether the staging→active rename has
// been durably recorded as started. "started" means finalize_staging has
// completed and the rename is about to happen (or may have partially
// happened); recover() uses this to decide what to complete.
type commitState struct {
	Started bool
}

// Store manages the file slots and commit journal for all modules under
// root.
type Store struct {
	root string
	db   *bolt.DB

	mu      sync.Mutex
	pending map[string]bool // modules with an open, unfinalized staging write
}

// Open opens (creating if necessary) a Store rooted at root. root holds
// one subdirectory per module plus a single bbolt journal file.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("staging: mkdir %s: %w", root, err)
	}
	db, err := bolt.Open(filepath.Join(root, "journal.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("staging: open journal: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("staging: init journal bucket: %w", err)
	}

	return &Store{root: root, db: db, pending: make(map[string]bool)}, nil
}

// Close releases the journal database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) moduleDir(name string) string {
	return filepath.Join(s.root, "modules", name)
}

func (s *Store) slotPath(name, slot string) string {
	return filepath.Join(s.moduleDir(name), slot+".bin")
}

// OpenStaging truncates any prior staging slot for name and marks a
// staging write open; write with WriteStaging, then call FinalizeStaging
// to persist the bytes durably. A second OpenStaging for the same module
// before FinalizeStaging or discard returns ErrBusy.
func (s *Store) OpenStaging(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[name] {
		return ErrBusy
	}
	if err := os.MkdirAll(s.moduleDir(name), 0o755); err != nil {
		return fmt.Errorf("staging: mkdir module dir: %w", err)
	}
	if err := os.WriteFile(s.slotPath(name, "staging"), nil, 0o644); err != nil {
		return fmt.Errorf("staging: truncate %s: %w", name, err)
	}
	s.pending[name] = true
	return nil
}

// WriteStaging writes data into name's staging slot without yet syncing
// it durably. It may be called multiple times before FinalizeStaging to
// append across orchestrator ticks; the reference caller writes the full
// artifact in one call.
func (s *Store) WriteStaging(name string, data []byte) error {
	s.mu.Lock()
	busy := !s.pending[name]
	s.mu.Unlock()
	if busy {
		return fmt.Errorf("staging: %s: no open staging write", name)
	}
	f, err := os.OpenFile(s.slotPath(name, "staging"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("staging: write %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("staging: write %s: %w", name, err)
	}
	return f.Close()
}

// DiscardStaging abandons an in-progress staging write, e.g. on
// cancellation via loss of the host's safe-window signal.
func (s *Store) DiscardStaging(name string) error {
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
	err := os.Remove(s.slotPath(name, "staging"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("staging: discard %s: %w", name, err)
	}
	return nil
}

// FinalizeStaging durably syncs the staging bytes for name (fsync) and
// clears the open-write marker. It must be called before Commit.
func (s *Store) FinalizeStaging(name string) error {
	f, err := os.OpenFile(s.slotPath(name, "staging"), os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("staging: finalize %s: %w", name, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("staging: finalize %s: sync: %w", name, err)
	}

	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
	return nil
}

// Commit atomically publishes the staged bytes as the new active slot for
// name, moving the current active into backup (overwriting any prior
// backup). A commit record is written to the journal and synced before
// either rename, so a power failure at any point leaves the module in a
// state Recover can deterministically classify.
func (s *Store) Commit(name string) error {
	if err := s.markCommitStarted(name); err != nil {
		return err
	}

	activePath := s.slotPath(name, "active")
	backupPath := s.slotPath(name, "backup")
	stagingPath := s.slotPath(name, "staging")

	if _, err := os.Stat(activePath); err == nil {
		if err := os.Rename(activePath, backupPath); err != nil {
			return fmt.Errorf("staging: commit %s: backup old active: %w", name, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("staging: commit %s: stat active: %w", name, err)
	}

	if err := os.Rename(stagingPath, activePath); err != nil {
		return fmt.Errorf("staging: commit %s: publish staging: %w", name, err)
	}

	return s.markCommitFinished(name)
}

// Rollback moves the backup slot back into active, discarding the
// current (failed) active, if a backup exists.
func (s *Store) Rollback(name string) error {
	backupPath := s.slotPath(name, "backup")
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("staging: rollback %s: no backup present", name)
	}
	activePath := s.slotPath(name, "active")
	if err := os.Rename(backupPath, activePath); err != nil {
		return fmt.Errorf("staging: rollback %s: %w", name, err)
	}
	return s.clearCommitRecord(name)
}

// FinalizeSuccess deletes the backup slot. Called by the orchestrator
// after the post-commit grace window has elapsed without instability.
func (s *Store) FinalizeSuccess(name string) error {
	err := os.Remove(s.slotPath(name, "backup"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("staging: finalize success %s: %w", name, err)
	}
	return s.clearCommitRecord(name)
}

// Read reads the given slot ("active", "staging", or "backup") for name
// into memory.
func (s *Store) Read(name, slot string) ([]byte, error) {
	data, err := os.ReadFile(s.slotPath(name, slot))
	if err != nil {
		return nil, fmt.Errorf("staging: read %s/%s: %w", name, slot, err)
	}
	return data, nil
}

// HasSlot reports whether the given slot exists for name.
func (s *Store) HasSlot(name, slot string) bool {
	_, err := os.Stat(s.slotPath(name, slot))
	return err == nil
}

// Recovery describes the outcome Recover reached for one module.
type Recovery struct {
	Module     string
	Resolution string // "clean", "staging_discarded", "commit_completed"
}

// Recover inspects every module directory on start-up and resolves any
// interrupted commit: a staging slot present without a started commit
// record is discarded; a commit record marked started but not finished
// is completed by ensuring active holds the staging bytes; an orphaned
// backup from a prior unfinalized commit is left in place so it can be
// consulted if the recovered active fails to load.
func (s *Store) Recover() ([]Recovery, error) {
	modulesRoot := filepath.Join(s.root, "modules")
	entries, err := os.ReadDir(modulesRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("staging: recover: list modules: %w", err)
	}

	var results []Recovery
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		res, err := s.recoverModule(name)
		if err != nil {
			return results, fmt.Errorf("staging: recover %s: %w", name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Store) recoverModule(name string) (Recovery, error) {
	started, err := s.commitStarted(name)
	if err != nil {
		return Recovery{}, err
	}

	stagingExists := s.HasSlot(name, "staging")
	activeExists := s.HasSlot(name, "active")

	if !started {
		if stagingExists {
			if err := os.Remove(s.slotPath(name, "staging")); err != nil {
				return Recovery{}, err
			}
			return Recovery{Module: name, Resolution: "staging_discarded"}, nil
		}
		return Recovery{Module: name, Resolution: "clean"}, nil
	}

	// A commit was started. If staging no longer exists, the rename
	// sequence completed. If staging and active both exist, neither rename
	// ran, so active moves to backup first; then staging becomes active.
	if stagingExists {
		if activeExists {
			if err := os.Rename(s.slotPath(name, "active"), s.slotPath(name, "backup")); err != nil {
				return Recovery{}, err
			}
		}
		if err := os.Rename(s.slotPath(name, "staging"), s.slotPath(name, "active")); err != nil {
			return Recovery{}, err
		}
	}
	if err := s.markCommitFinished(name); err != nil {
		return Recovery{}, err
	}
	return Recovery{Module: name, Resolution: "commit_completed"}, nil
}

func (s *Store) markCommitStarted(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(journalBucket)
		return b.Put([]byte(name), []byte{1})
	})
}

func (s *Store) markCommitFinished(name string) error {
	return s.clearCommitRecord(name)
}

func (s *Store) clearCommitRecord(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(journalBucket)
		return b.Delete([]byte(name))
	})
}

func (s *Store) commitStarted(name string) (bool, error) {
	var started bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(journalBucket)
		started = b.Get([]byte(name)) != nil
		return nil
	})
	return started, err
}
