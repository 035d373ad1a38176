// Package progress carries live run events from the workers to pluggable
// sinks. Emit never blocks; a background goroutine batches events and fans
// them out, so a slow sink cannot stall a worker slot.
package progress
