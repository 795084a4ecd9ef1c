// Package eviction runs the background worker that bounds CAS table
// growth by pruning receipts and file-state entries that have gone
// unused for longer than a configured age.
//
// The worker checks its stop signal on a 1-second cadence rather than
// sleeping for the full check interval, so shutdown is never delayed
// by more than about a second even though the check interval itself is
// a minute.
package eviction
