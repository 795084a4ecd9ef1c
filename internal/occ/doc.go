// Package occ implements the concurrency-control engine: the four
// protocols (open-for-read, open-for-write, write, flush) plus
// unlink/rename/create/truncate, wired against the CAS table and
// handle table to decide whether a mutating operation may proceed.
//
// The engine never performs the actual backing I/O syscall for an
// open — it makes the OCC decision and updates bookkeeping, leaving
// the kernel adapter to perform the real open()/write() against the
// backing descriptor once the engine has granted permission. This
// split keeps the decision logic testable without a real FUSE mount.
package occ
