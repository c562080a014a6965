// Package goid resolves the identity of the calling goroutine.
//
// Identity is used for confinement checks (is this the worker goroutine?) and
// to key goroutine-local storage. Ids are assigned by the runtime, are never
// zero for a live goroutine, and are not reused during the life of a process.
package goid

import (
	"runtime"
)

const prefix = len("goroutine ")

// Get returns the id of the calling goroutine.
//
// The id is parsed from the header of runtime.Stack, which is stable across
// Go releases ("goroutine N [status]:").
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := prefix; i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
