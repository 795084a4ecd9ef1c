// Package cas implements the content-addressable state table at the
// center of the concurrency-control engine: one write-owner record per
// tracked path, and one reader receipt per (session, path) pair.
//
// All mutating operations on a single path are linearized by holding
// the table's mutex across the full read-decide-write sequence of an
// OCC check, precluding a TOCTOU race between the decision and a
// concurrent handle opening the same path.
package cas
