// Package flock provides an advisory file lock used to guard a
// sequence store against concurrent writers from other processes.
package flock

import "errors"

// ErrHeld is returned by Acquire when the lock is already held, by
// another process or by another handle in this one.
var ErrHeld = errors.New("flock: lock already held")
