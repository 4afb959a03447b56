//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package flock

import "golang.org/x/sys/unix"

// Lock is an acquired advisory lock on a lock file.
type Lock struct {
	fd int
}

// Acquire takes an exclusive advisory lock on path, creating the file
// if needed. It does not block: if the lock is held elsewhere, Acquire
// fails with ErrHeld.
func Acquire(path string) (*Lock, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, ErrHeld
		}
		return nil, err
	}
	return &Lock{fd: fd}, nil
}

// Release drops the lock. The lock file is left in place.
func (l *Lock) Release() error {
	return unix.Close(l.fd)
}
