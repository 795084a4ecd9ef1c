// Package handles tracks per-open-file-descriptor state: which backing
// path and session a kernel-assigned file handle refers to, whether it
// was opened for writing, and the content hash observed at open time
// for read-capable handles.
package handles
