//go:build !deadlock

// Package syncutil provides mutex types that can be swapped for deadlock
// detecting ones by building with -tags=deadlock.
package syncutil

import "sync"

// Mutex wraps sync.Mutex.
type Mutex struct {
	sync.Mutex
}
