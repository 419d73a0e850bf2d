//go:build deadlock

// Package syncutil provides mutex types that can be swapped for deadlock
// detecting ones by building with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex and reports lock-order inversions and stalls.
type Mutex struct {
	deadlock.Mutex
}
