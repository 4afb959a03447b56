package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenFreshInitializesFirstSlot(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 5)
	assert.NoError(err)

	v, err := s.Read()
	assert.NoError(err)
	assert.Equal(uint64(5), v)

	info, err := os.Stat(filepath.Join(dir, "_1.seq"))
	assert.NoError(err)
	assert.Equal(int64(recordSize), info.Size())

	_, err = os.Stat(filepath.Join(dir, "_2.seq"))
	assert.True(os.IsNotExist(err))
}

func TestOpenExistingIgnoresInitial(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 5)
	assert.NoError(err)
	assert.NoError(s.Commit(6))

	s2, err := Open(dir, 999)
	assert.NoError(err)
	v, err := s2.Read()
	assert.NoError(err)
	assert.Equal(uint64(6), v)
}

func TestCommitAlternatesSlots(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 1)
	assert.NoError(err)

	assert.NoError(s.Commit(2))
	_, err = os.Stat(filepath.Join(dir, "_2.seq"))
	assert.NoError(err)

	assert.NoError(s.Commit(3))
	assert.NoError(s.Commit(4))

	v, err := s.Read()
	assert.NoError(err)
	assert.Equal(uint64(4), v)

	s2, err := Open(dir, 0)
	assert.NoError(err)
	v, err = s2.Read()
	assert.NoError(err)
	assert.Equal(uint64(4), v)
}

func TestReopenAfterTornWriteKeepsCommittedValue(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 5)
	assert.NoError(err)
	assert.NoError(s.Commit(6))

	// Current is now _2.seq. Simulate a crash midway through the next
	// commit: the non-current slot holds a short, unfinished write.
	stale := filepath.Join(dir, "_1.seq")
	assert.NoError(os.WriteFile(stale, []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}, 0o644))

	s2, err := Open(dir, 0)
	assert.NoError(err)
	v, err := s2.Read()
	assert.NoError(err)
	assert.Equal(uint64(6), v)
}

func TestReopenAfterGarbageSlotKeepsCommittedValue(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 5)
	assert.NoError(err)
	assert.NoError(s.Commit(6))

	// A full-size record of zeros carries a zero checksum field, which
	// never matches the crc of its first 16 bytes.
	stale := filepath.Join(dir, "_1.seq")
	assert.NoError(os.WriteFile(stale, make([]byte, recordSize), 0o644))

	s2, err := Open(dir, 0)
	assert.NoError(err)
	v, err := s2.Read()
	assert.NoError(err)
	assert.Equal(uint64(6), v)
}

func TestReopenAfterCompletedWriteSeesNewValue(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 5)
	assert.NoError(err)

	// A fully written and synced slot counts as committed even if the
	// process dies before its in-memory state catches up.
	assert.NoError(s.writeSlot(1, s.gen+1, 99))

	s2, err := Open(dir, 0)
	assert.NoError(err)
	v, err := s2.Read()
	assert.NoError(err)
	assert.Equal(uint64(99), v)
}

func TestEqualGenerationsKeepLargerValue(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 1)
	assert.NoError(err)
	assert.NoError(s.writeSlot(1, 0, 42))

	s2, err := Open(dir, 0)
	assert.NoError(err)
	v, err := s2.Read()
	assert.NoError(err)
	assert.Equal(uint64(42), v)
}

func TestOpenBothSlotsCorruptFails(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	assert.NoError(os.WriteFile(filepath.Join(dir, "_1.seq"), nil, 0o644))
	assert.NoError(os.WriteFile(filepath.Join(dir, "_2.seq"), nil, 0o644))

	_, err := Open(dir, 5)
	assert.ErrorIs(err, ErrCorrupt)
}

func TestOpenSingleCorruptSlotFails(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	assert.NoError(os.WriteFile(filepath.Join(dir, "_1.seq"), nil, 0o644))

	_, err := Open(dir, 5)
	assert.ErrorIs(err, ErrCorrupt)
}

func TestDeleteIsIdempotent(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 1)
	assert.NoError(err)
	assert.NoError(s.Commit(2))

	assert.NoError(s.Delete())
	assert.NoError(s.Delete())

	_, err = os.Stat(filepath.Join(dir, "_1.seq"))
	assert.True(os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "_2.seq"))
	assert.True(os.IsNotExist(err))
}

func TestReadReportsMissingCurrentSlot(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	s, err := Open(dir, 1)
	assert.NoError(err)
	assert.NoError(os.Remove(filepath.Join(dir, "_1.seq")))

	_, err = s.Read()
	assert.Error(err)
}
