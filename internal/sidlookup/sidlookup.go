package sidlookup

import "golang.org/x/sys/unix"

// Resolve returns the POSIX session ID for pid, falling back to pid
// itself if the session lookup fails.
func Resolve(pid uint32) uint32 {
	sid, err := unix.Getsid(int(pid))
	if err != nil || sid < 0 {
		return pid
	}
	return uint32(sid)
}
