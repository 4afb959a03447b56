package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// A slot record is generation (8 bytes), value (8 bytes) and an IEEE
// crc32 of the first 16 bytes, all big-endian. A short file or a
// checksum mismatch marks the slot malformed, so a torn write is never
// mistaken for a committed value.
const recordSize = 20

var slotNames = [2]string{"_1.seq", "_2.seq"}

// ErrCorrupt is returned by Open when at least one slot file exists but
// none of them holds a readable record. Picking a slot arbitrarily in
// that state could move the sequence backward, so the store refuses to
// open instead.
var ErrCorrupt = errors.New("fileseq: corrupt store: no slot holds a valid record")

// Store persists a single uint64 with crash-safe updates across two
// alternating slot files. The slot carrying the higher generation is
// authoritative; commits always rewrite the other slot in full and sync
// it before promoting it, so at every instant at least one slot parses
// to a committed value.
type Store struct {
	mu      sync.RWMutex
	dir     string
	paths   [2]string
	current int
	gen     uint64
}

type record struct {
	gen   uint64
	value uint64
}

// Open opens the store in dir, creating the directory and an initial
// slot with value initial if no slot file exists yet. If slot files
// exist, the one with the higher generation wins; a slot that fails to
// parse is discarded in favor of the other.
func Open(dir string, initial uint64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fileseq: create store dir: %w", err)
	}

	s := &Store{
		dir: dir,
		paths: [2]string{
			filepath.Join(dir, slotNames[0]),
			filepath.Join(dir, slotNames[1]),
		},
	}

	var (
		recs    [2]record
		present [2]bool
		valid   [2]bool
	)
	for i := range s.paths {
		rec, pres, ok, err := readSlot(s.paths[i])
		if err != nil {
			return nil, err
		}
		recs[i], present[i], valid[i] = rec, pres, ok
	}

	switch {
	case valid[0] && valid[1]:
		switch {
		case recs[0].gen > recs[1].gen:
			s.current = 0
		case recs[1].gen > recs[0].gen:
			s.current = 1
		default:
			// The commit protocol never produces equal generations;
			// something rewrote a slot behind our back. Keep the larger
			// value so the sequence cannot move backward.
			logrus.Warnf("fileseq: slots %s and %s carry the same generation, keeping the larger value", s.paths[0], s.paths[1])
			s.current = 0
			if recs[1].value > recs[0].value {
				s.current = 1
			}
		}
		s.gen = recs[s.current].gen
	case valid[0] || valid[1]:
		s.current = 0
		if valid[1] {
			s.current = 1
		}
		s.gen = recs[s.current].gen
		if other := 1 - s.current; present[other] {
			logrus.Warnf("fileseq: discarding unreadable slot %s", s.paths[other])
		}
	default:
		if present[0] || present[1] {
			return nil, ErrCorrupt
		}
		if err := s.writeSlot(0, 0, initial); err != nil {
			return nil, err
		}
		s.current = 0
		s.gen = 0
	}

	return s, nil
}

// Read returns the value recorded in the current slot. The slot file is
// re-read from disk so external interference surfaces as an error
// instead of a stale answer.
func (s *Store) Read() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.paths[s.current]
	rec, present, ok, err := readSlot(path)
	if err != nil {
		return 0, err
	}
	if !ok {
		if !present {
			return 0, fmt.Errorf("fileseq: current slot %s is missing", path)
		}
		return 0, fmt.Errorf("fileseq: current slot %s no longer parses", path)
	}
	return rec.value, nil
}

// Commit durably records v as the new current value. The non-current
// slot is rewritten with the next generation and synced before it is
// promoted; on any failure the previous slot stays authoritative and
// the commit must be retried by the caller.
func (s *Store) Commit(v uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1 - s.current
	if err := s.writeSlot(next, s.gen+1, v); err != nil {
		return err
	}
	s.current = next
	s.gen++
	return nil
}

// Delete removes both slot files. A slot that is already gone is not an
// error.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fileseq: remove slot %s: %w", p, err)
		}
	}
	return nil
}

// readSlot parses one slot file. present reports that the file exists
// at all; ok reports that it holds a complete, checksummed record.
// err is reserved for real filesystem failures.
func readSlot(path string) (rec record, present, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, false, false, nil
		}
		return rec, true, false, fmt.Errorf("fileseq: open slot %s: %w", path, err)
	}
	defer f.Close()

	var buf [recordSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return rec, true, false, nil
		}
		return rec, true, false, fmt.Errorf("fileseq: read slot %s: %w", path, err)
	}

	sum := binary.BigEndian.Uint32(buf[16:20])
	if crc32.ChecksumIEEE(buf[:16]) != sum {
		return rec, true, false, nil
	}
	rec.gen = binary.BigEndian.Uint64(buf[0:8])
	rec.value = binary.BigEndian.Uint64(buf[8:16])
	return rec, true, true, nil
}

func (s *Store) writeSlot(i int, gen, value uint64) error {
	var buf [recordSize]byte
	binary.BigEndian.PutUint64(buf[0:8], gen)
	binary.BigEndian.PutUint64(buf[8:16], value)
	binary.BigEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(buf[:16]))

	path := s.paths[i]
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("fileseq: open slot %s: %w", path, err)
	}
	if _, err := f.Write(buf[:]); err != nil {
		f.Close()
		return fmt.Errorf("fileseq: write slot %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fileseq: sync slot %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("fileseq: close slot %s: %w", path, err)
	}
	return s.syncDir()
}

// syncDir makes a freshly created slot file itself durable.
func (s *Store) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("fileseq: open store dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("fileseq: sync store dir: %w", err)
	}
	return nil
}
