package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dibs-fs/dibs/internal/cas"
	"github.com/dibs-fs/dibs/internal/conflicts"
	"github.com/dibs-fs/dibs/internal/eviction"
	"github.com/dibs-fs/dibs/internal/fsadapter"
	"github.com/dibs-fs/dibs/internal/handles"
	"github.com/dibs-fs/dibs/internal/occ"
	"github.com/dibs-fs/dibs/internal/shutdown"
	"github.com/dibs-fs/dibs/internal/virtualfs"
	"github.com/dibs-fs/dibs/lib/clock"
)

func runMount(args []string) error {
	fs := flag.NewFlagSet("mount", flag.ContinueOnError)
	sessionID := fs.String("session-id", "", "session identifier for logging (default: a generated uuid)")
	logFile := fs.String("log-file", "/tmp/dibs.log", "log file path (in addition to stderr); empty disables the file tee")
	evictionMinutes := fs.Uint("eviction-minutes", 60, "minutes before evicting idle CAS entries")
	saveConflicts := fs.Bool("save-conflicts", false, "save rejected write contents under .dibs/conflicts/")
	readonlyFallback := fs.Bool("readonly-fallback", false, "discard refused writes instead of returning an I/O error")
	foreground := fs.Bool("foreground", false, "run in the foreground (accepted for CLI compatibility; this implementation never daemonizes)")
	fs.BoolVar(foreground, "f", false, "shorthand for --foreground")
	allowOther := fs.Bool("allow-other", false, "allow other users to access the mount (requires user_allow_other in /etc/fuse.conf)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: dibs mount [options] <backing_dir> <mount_point>")
	}
	backingDir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolving backing directory: %w", err)
	}
	mountpoint, err := filepath.Abs(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("resolving mount point: %w", err)
	}

	logger, closeLog, err := newLogger(*logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	session := newSessionID(*sessionID)
	logger.Info("starting dibs mount",
		"backing", backingDir,
		"mountpoint", mountpoint,
		"session_id", session,
		"eviction_minutes", *evictionMinutes,
		"save_conflicts", *saveConflicts,
		"readonly_fallback", *readonlyFallback,
		"foreground", *foreground,
	)

	clk := clock.Real()
	casTable := cas.NewTable(clk)
	engine := occ.NewEngine(casTable, handles.NewTable(), backingDir, logger)
	metrics := virtualfs.NewMetrics(casTable)
	engine.Metrics = metrics

	var sidecar *conflicts.Sidecar
	if *saveConflicts {
		sidecar = &conflicts.Sidecar{
			Dir:   filepath.Join(os.TempDir(), "dibs-conflicts-"+session),
			Clock: clk,
		}
	}

	startedAt := clk.Now()
	server, err := fsadapter.Mount(fsadapter.Options{
		Mountpoint:       mountpoint,
		BackingRoot:      backingDir,
		Engine:           engine,
		Metrics:          metrics,
		Clock:            clk,
		StartedAt:        startedAt,
		SessionID:        session,
		Conflicts:        sidecar,
		ReadonlyFallback: *readonlyFallback,
		AllowOther:       *allowOther,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("mounting: %w", err)
	}

	worker := &eviction.Worker{
		CAS:     casTable,
		Clock:   clk,
		MaxAge:  evictionMaxAge(*evictionMinutes),
		Logger:  logger,
		Metrics: metrics,
	}
	workerStop := make(chan struct{})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerStop)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	sessionDone := make(chan struct{})
	go func() {
		server.Wait()
		close(sessionDone)
	}()

	coordinator := &shutdown.Coordinator{Clock: clk, Logger: logger}
	return coordinator.Run(signals, sessionDone, func() {
		close(workerStop)
		<-workerDone
	}, server.Unmount)
}
