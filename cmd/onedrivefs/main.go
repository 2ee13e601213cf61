package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	govfuse "github.com/hanwen/go-fuse/v2/fuse"
	flag "github.com/spf13/pflag"

	"github.com/auriora/onedrivefs/internal/cache"
	"github.com/auriora/onedrivefs/internal/config"
	"github.com/auriora/onedrivefs/internal/dbusstatus"
	vfs "github.com/auriora/onedrivefs/internal/fuse"
	"github.com/auriora/onedrivefs/internal/graph"
	"github.com/auriora/onedrivefs/internal/ingest"
	"github.com/auriora/onedrivefs/internal/logging"
	"github.com/auriora/onedrivefs/internal/scheduler"
	"github.com/auriora/onedrivefs/internal/status"
	"github.com/auriora/onedrivefs/internal/statusbus"
	"github.com/auriora/onedrivefs/internal/store"
	syncproc "github.com/auriora/onedrivefs/internal/sync"
)

const version = "0.1.0"

func usage() {
	fmt.Printf(`onedrivefs - a Linux OneDrive synchronization daemon.

Mounts a OneDrive account as a FUSE filesystem and keeps a local
bidirectional sync of metadata and content, downloading file bodies on
first access.

Usage: onedrivefs [options] <mountpoint>

Valid options:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.StringP("config-file", "f", defaultConfigPath(), "Path to settings.json.")
	logLevel := flag.StringP("log", "l", "", "Logging level: trace, debug, info, warn, error, fatal.")
	dataDir := flag.StringP("data-dir", "d", "", "Override the data directory used for metadata and cached content.")
	debugFUSE := flag.Bool("fuse-debug", false, "Log every FUSE request/response.")
	versionFlag := flag.BoolP("version", "v", false, "Display program version.")
	help := flag.BoolP("help", "h", false, "Display this help message.")
	flag.Usage = usage
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println("onedrivefs", version)
		os.Exit(0)
	}
	if len(flag.Args()) == 0 {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nno mountpoint provided, exiting.")
		os.Exit(1)
	}
	mountpoint := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "onedrivefs:", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	cfg.MountPoint = mountpoint

	if err := logging.Configure(cfg.LogLevel, cfg.LogPath); err != nil {
		fmt.Fprintln(os.Stderr, "onedrivefs: failed to configure logging:", err)
	}
	logger := logging.For("main")

	if err := run(cfg, *debugFUSE); err != nil {
		logger.Fatal().Err(err).Msg("onedrivefs exited with an error")
	}
}

func run(cfg config.Config, debugFUSE bool) error {
	logger := logging.For("main")

	if err := os.MkdirAll(cfg.InstanceDataDir(), 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if st, statErr := os.Stat(cfg.MountPoint); statErr != nil || !st.IsDir() {
		return fmt.Errorf("mountpoint %q does not exist or is not a directory", cfg.MountPoint)
	}

	st, err := store.Open(cfg.MetadataPath(), 5*time.Minute)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer st.Close()

	blobs, err := cache.New(cfg.ContentCacheDir())
	if err != nil {
		return fmt.Errorf("open content cache: %w", err)
	}

	bearer := newFileBearerSource(cfg.TokenPath())
	remote := graph.NewClient(bearer)

	proc := syncproc.New(remote, st, blobs, syncproc.Config{
		LargeUploadThreshold: cfg.LargeUploadThresholdBytes,
		DownloadFolders:      cfg.DownloadFolders,
	})
	ingestor := ingest.New(remote, st)

	bus := statusbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New()
	sched.Register(&scheduler.Task{
		Name:     "delta_ingest",
		Interval: cfg.DeltaInterval(),
		Deadline: cfg.DeltaInterval() * 3,
		Run: func(ctx context.Context) error {
			n, err := ingestor.Run(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Debug().Int("count", n).Msg("ingested delta items")
			}
			return nil
		},
	})
	sched.Register(&scheduler.Task{
		Name:     "sync_cycle",
		Interval: cfg.SyncInterval(),
		Deadline: cfg.SyncInterval() * 3,
		Run:      proc.RunCycle,
	})
	sched.Register(&scheduler.Task{
		Name:     "housekeeping",
		Interval: cfg.HousekeepingInterval(),
		Deadline: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := st.Vacuum(cfg.HousekeepingRetention())
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Debug().Int("count", n).Msg("vacuumed completed queue entries")
			}
			return nil
		},
	})
	sched.Register(&scheduler.Task{
		Name:     "status_broadcast",
		Interval: cfg.StatusInterval(),
		Deadline: cfg.StatusInterval() * 3,
		Run: func(ctx context.Context) error {
			return publishStatus(ctx, bearer, st, bus)
		},
	})

	schedErrCh := make(chan error, 1)
	go func() { schedErrCh <- sched.Run(ctx) }()

	var dbusBroadcaster *dbusstatus.Broadcaster
	if b, err := dbusstatus.Connect(); err != nil {
		logger.Warn().Err(err).Msg("D-Bus session bus unavailable, status signal disabled")
	} else {
		dbusBroadcaster = b
		go dbusBroadcaster.Run(ctx, bus)
	}

	fsys := vfs.New(st, blobs, proc)
	mountOptions := &govfuse.MountOptions{
		Name:          "onedrivefs",
		FsName:        "onedrivefs",
		DisableXAttrs: false,
		MaxBackground: 128,
		Debug:         debugFUSE,
	}
	server, err := govfuse.NewServer(fsys, cfg.MountPoint, mountOptions)
	if err != nil {
		return fmt.Errorf("mount %q (is it already in use? try \"fusermount3 -uz %s\"): %w", cfg.MountPoint, cfg.MountPoint, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("signal received, unmounting")
		cancel()
		if dbusBroadcaster != nil {
			dbusBroadcaster.Close()
		}
		if err := server.Unmount(); err != nil {
			logger.Error().Err(err).Msg("unmount failed, run fusermount3 -uz manually")
		}
	}()

	logger.Info().Str("mountpoint", cfg.MountPoint).Str("dataDir", cfg.DataDir).Msg("serving filesystem")
	server.Serve()

	if err := <-schedErrCh; err != nil && err != context.Canceled {
		logger.Warn().Err(err).Msg("scheduler stopped with an error")
	}
	return nil
}

// publishStatus builds a fresh snapshot from whatever the daemon can check
// cheaply - a token read and a queue scan - rather than maintaining
// duplicate state purely for reporting.
func publishStatus(ctx context.Context, bearer *fileBearerSource, st *store.Store, bus *statusbus.Bus) error {
	authenticated := true
	if _, err := bearer.FetchBearer(ctx); err != nil {
		authenticated = false
	}

	conflicted, err := st.CountConflicted()
	if err != nil {
		return err
	}

	bus.Publish(status.Snapshot{
		Authenticated: authenticated,
		Online:        authenticated,
		SyncState:     status.SyncRunning,
		HasConflicts:  conflicted > 0,
		IsMounted:     true,
	})
	return nil
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "onedrivefs", "settings.json")
}
