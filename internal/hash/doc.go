// Package hash computes the content digest the concurrency-control
// engine uses to detect whether a backing file has changed since a
// session last observed it.
//
// Two regimes are used depending on file size: a cryptographic digest
// for small files, and a fast non-cryptographic digest for large ones.
// The boundary exists to bound per-write latency, not to provide any
// security property — digests are compared only for equality, never
// verified against an adversary.
package hash
