// Package fileseq implements a crash-safe sequence persisted to disk.
// The current value lives in one of two alternating slot files; every
// increment rewrites the other slot in full and syncs it before it
// becomes authoritative, so after a crash a reopened sequence reports
// the last committed value or an earlier one, never a torn write.
package fileseq

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hunknownz/fileseq/flock"
	"github.com/hunknownz/fileseq/store"
)

// ErrCorrupt is returned by New when slot files exist but none of them
// holds a valid record.
var ErrCorrupt = store.ErrCorrupt

// ErrOverflow is returned when an increment would exceed the range of
// the counter. The value is never wrapped.
var ErrOverflow = errors.New("fileseq: sequence overflow")

const lockFileName = "seq.lock"

// Seq is a durable counter. Increments are serialized within the
// owning process; crash-safety of the stored value is provided by the
// underlying two-slot store.
type Seq struct {
	mu    sync.Mutex // serializes read-modify-commit
	store *store.Store
	lock  *flock.Lock
}

// New opens the sequence stored in dir, creating it with the given
// initial value if no slot file exists yet. If the store already
// exists, initial is ignored.
func New(dir string, initial uint64) (*Seq, error) {
	st, err := store.Open(dir, initial)
	if err != nil {
		return nil, err
	}
	return &Seq{store: st}, nil
}

// NewLocked is New plus an exclusive advisory lock on a lock file in
// dir, held until Close. It guards against lost increments from other
// processes sharing the directory; crash-safety alone does not need it.
// Acquire fails immediately with flock.ErrHeld when another handle owns
// the lock.
func NewLocked(dir string, initial uint64) (*Seq, error) {
	s, err := New(dir, initial)
	if err != nil {
		return nil, err
	}
	l, err := flock.Acquire(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("fileseq: lock store: %w", err)
	}
	s.lock = l
	return s, nil
}

// Value returns the current value of the sequence.
func (s *Seq) Value() (uint64, error) {
	return s.store.Read()
}

// IncrementAndGet adds delta to the sequence and returns the new value.
func (s *Seq) IncrementAndGet(delta uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.Read()
	if err != nil {
		return 0, err
	}
	next := cur + delta
	if next < cur {
		return 0, ErrOverflow
	}
	if err := s.store.Commit(next); err != nil {
		return 0, err
	}
	return next, nil
}

// GetAndIncrement adds delta to the sequence and returns the value it
// had before the addition.
func (s *Seq) GetAndIncrement(delta uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.Read()
	if err != nil {
		return 0, err
	}
	next := cur + delta
	if next < cur {
		return 0, ErrOverflow
	}
	if err := s.store.Commit(next); err != nil {
		return 0, err
	}
	return cur, nil
}

// Next returns the next value in the sequence.
func (s *Seq) Next() (uint64, error) {
	return s.IncrementAndGet(1)
}

// Delete removes both slot files. Deletion is best-effort cleanup: the
// caller has no corrective action to take, so failures are logged and
// swallowed. Absent files are not a failure.
func (s *Seq) Delete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(); err != nil {
		logrus.Debugf("fileseq: best-effort delete: %v", err)
	}
}

// Close releases the advisory lock taken by NewLocked. Closing a
// sequence opened with New is a no-op.
func (s *Seq) Close() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.Release()
	s.lock = nil
	return err
}
