// Package sidlookup resolves a caller's POSIX session ID from its
// process ID. Scoping receipts by terminal session, rather than PID,
// groups a shell and the subprocesses it spawns for I/O into one
// logical agent.
//
// If session-ID resolution fails (non-POSIX host, or the process has
// already exited), the PID itself is used as a fallback SID. The only
// consequence of the fallback is that subprocess-driven reads/writes
// may look like separate agents — conservative: it produces more
// refusals, never fewer.
package sidlookup
