// Package shutdown coordinates orderly termination: it waits for
// either a terminal signal or the FUSE session exiting on its own
// (external unmount), then joins the eviction worker before tearing
// down the session — in that order, since the worker reads state owned
// by the object the session's lifetime bounds.
//
// The original design behind this component used a self-pipe written
// from a signal handler and polled with a 200ms timeout. Go's signal
// package already delivers signals to a channel in an async-signal-safe
// way, so this is realized as a plain select loop instead of a literal
// pipe.
package shutdown
