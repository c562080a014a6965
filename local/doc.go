// Package local implements goroutine-local storage, in the manner of a
// thread-local registry.
//
// Each [Local] owns a process-wide index, allocated once when the Local is
// created and never reclaimed. Every goroutine that touches a Local gets its
// own storage block: an index-addressed slice of values, plus a bitset
// manifest recording which indices currently hold a value. The manifest is
// what makes bulk teardown possible, see [RemoveAll].
//
// Blocks are only ever mutated by the goroutine that owns them. Goroutines
// that use this package must call [RemoveAll] before exiting, otherwise their
// block is retained for the life of the process. Event-loop workers in the
// parent module do so as the last step before termination.
//
// Locals are intended to be declared as package-level variables.
package local
