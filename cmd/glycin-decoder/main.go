//go:build linux

// Command glycin-decoder is the in-sandbox decoder runtime: installs the
// seccomp filter, locates its IPC socket via GLYCIN_IPC_FD, and serves
// Init/Frame/Terminate requests until the host tears it down. It is
// never invoked directly by a user — internal/sandbox spawns it (or a
// codec-specific binary sharing this shape) inside a bwrap/flatpak-spawn
// sandbox, with the image MIME type resolved at runtime from Init.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ehrlich-b/glycin-go/internal/config"
	"github.com/ehrlich-b/glycin-go/internal/decoderrt"
	"github.com/ehrlich-b/glycin-go/internal/decoderrt/loaders/gifloader"
	"github.com/ehrlich-b/glycin-go/internal/decoderrt/loaders/pngloader"
	"github.com/ehrlich-b/glycin-go/internal/errs"
	"github.com/ehrlich-b/glycin-go/internal/ipc"
	"github.com/ehrlich-b/glycin-go/internal/logger"
	"github.com/ehrlich-b/glycin-go/internal/seccomp"
)

func main() {
	mgr := config.NewManager()
	if dir, err := config.GetUserConfigDir(); err == nil {
		if err := mgr.Load(dir); err != nil {
			fmt.Fprintln(os.Stderr, "glycin-decoder: load config:", err)
		}
	}
	rc := mgr.Get()

	if err := logger.Init(rc.LogLevel, rc.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, "glycin-decoder: logger init:", err)
	}

	// The trap handler must be armed before the filter loads: a blocked
	// syscall fires SIGSYS the instant Load returns.
	seccomp.InstallTrapHandler()
	prog, manifest := seccomp.BuildBase()
	if err := seccomp.Load(prog); err != nil {
		die("install seccomp filter", err)
	}
	logger.Debug("glycin-decoder: seccomp filter installed", "syscalls_allowed", len(manifest.Names))

	fdStr := os.Getenv("GLYCIN_IPC_FD")
	fd, err := strconv.Atoi(fdStr)
	if err != nil || fd < 3 {
		die("resolve GLYCIN_IPC_FD", fmt.Errorf("invalid value %q", fdStr))
	}

	conn, err := ipc.FromFile(os.NewFile(uintptr(fd), "glycin-ipc"))
	if err != nil {
		die("wrap inherited ipc socket", err)
	}

	registry := decoderrt.NewRegistry()
	registry.Register("image/png", pngloader.New)
	registry.Register("image/gif", gifloader.New)

	srv := decoderrt.NewServer(conn, registry, rc.SealRetries).WithInlineThreshold(rc.InlineBlobThreshold)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("glycin-decoder: request loop ended with error", "error", err)
		os.Exit(1)
	}
}

func die(step string, err error) {
	fmt.Fprintf(os.Stderr, "glycin-decoder: %s: %v\n", step, err)
	os.Exit(128 + int(errs.KindOf(err)))
}
