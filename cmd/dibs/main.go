// Command dibs mounts a backing directory as a FUSE filesystem that
// grants optimistic write exclusivity per path, and unmounts one
// previously mounted.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/dibs-fs/dibs/lib/process"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: dibs <mount|unmount> [options]")
	}

	switch args[0] {
	case "mount":
		return runMount(args[1:])
	case "unmount":
		return runUnmount(args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q (want mount or unmount)", args[0])
	}
}

// newLogger builds the standard dibs logger: a JSON handler writing to
// stderr, additionally teed to logFile when non-empty. Grounded on the
// bureau service logger's "JSON to stderr" shape, extended with the
// file tee the original's --log-file flag requires.
func newLogger(logFile string) (*slog.Logger, func(), error) {
	writer := io.Writer(os.Stderr)
	cleanup := func() {}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", logFile, err)
		}
		writer = io.MultiWriter(os.Stderr, file)
		cleanup = func() { file.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func newSessionID(provided string) string {
	if provided != "" {
		return provided
	}
	return uuid.NewString()
}
