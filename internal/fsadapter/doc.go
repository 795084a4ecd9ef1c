// Package fsadapter mounts the concurrency-control engine as a FUSE
// filesystem. It mirrors a backing directory via go-fuse's loopback
// node, intercepting the handful of callbacks that need an OCC
// decision (open, create, write, flush, release, unlink, rename,
// setattr), refusing link outright, and letting everything else —
// getattr, mkdir, rmdir, symlink, readlink, access, statfs — fall
// through to the embedded loopback implementation unmodified, per
// §4.5.7's passthrough rule for operations that carry no content hash.
//
// The mount root additionally serves a synthetic, read-only ".dibs"
// subtree (status, locks, metrics, conflicts) that never touches the
// backing directory; lookup and readdir are overridden only to add
// that entry at the root and otherwise defer to the loopback node.
package fsadapter
