package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// evictionMaxAge converts the --eviction-minutes flag value into a
// time.Duration. A zero value is not special-cased: it is passed
// straight through as a zero MaxAge, which makes the eviction worker
// prune every entry without an active write owner on its next
// eviction pass (once per check interval), regardless of age.
// Callers that want aging disabled entirely must not run the eviction
// worker at all rather than pass 0 here.
func evictionMaxAge(minutes uint) time.Duration {
	if minutes == 0 {
		return time.Duration(0)
	}
	return time.Duration(minutes) * time.Minute
}

func runUnmount(args []string) error {
	fs := flag.NewFlagSet("unmount", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: dibs unmount <mount_point>")
	}
	mountpoint := fs.Arg(0)

	err := unix.Unmount(mountpoint, 0)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount point %s is busy (open files or a process with its working directory there); close them and retry", mountpoint)
	}
	return fmt.Errorf("unmounting %s: %w", mountpoint, err)
}
