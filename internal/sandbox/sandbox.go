// Package sandbox constructs the isolated process a decoder runs in:
// namespace/seccomp confinement via bubblewrap, a flatpak-spawn delegation
// path for hosts that are themselves confined, or an explicit
// not-sandboxed escape hatch. It never silently degrades isolation — a
// caller asking for a sandbox either gets one or gets an error.
package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Backend spawns a confined decoder process.
type Backend interface {
	// Exec prepares (but does not start) the command that will run the
	// decoder binary inside this sandbox.
	Exec(ctx context.Context, name string, args []string) (*exec.Cmd, error)
	// PostStart applies any limits that must be set after the process
	// exists (prlimit, cgroup membership).
	PostStart(pid int) error
	// Destroy releases sandbox-owned resources (tmpdirs, cgroups).
	Destroy() error
}

// Mount describes a filesystem mount made available inside the sandbox
// (e.g. a codec's own shared libraries), read-only when ReadOnly is set
// and writable otherwise.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Config holds sandbox construction parameters, mirroring spec.md's
// SandboxSpec.
type Config struct {
	Isolation     Level
	Mounts        []Mount
	SessionID     string // unique per decoder process, used for cgroup naming
	CPULimit      time.Duration
	MemLimit      uint64 // bytes; enforced via cgroup memory.max + prlimit RLIMIT_AS floor
	MaxFDs        uint32
	ExtraSyscalls []string // loader-specific seccomp allow-list extensions
}

// Selector names which sandbox backend to use, matching the literal
// GLYCIN_SANDBOX environment variable values.
type Selector string

const (
	SelectorAuto          Selector = ""
	SelectorBwrap         Selector = "bwrap"
	SelectorFlatpakSpawn  Selector = "flatpak-spawn"
	SelectorNotSandboxed  Selector = "not-sandboxed"
)

// EnforcementError is returned when the host cannot enforce the
// requested isolation — the caller must not proceed with a weaker
// sandbox than it asked for.
type EnforcementError struct {
	Gaps     []string
	Platform string
}

func (e *EnforcementError) Error() string {
	msg := "system incapable of enforcing: " + strings.Join(e.Gaps, ", ")
	if e.Platform != "" {
		msg += ". " + e.Platform
	}
	return msg
}

// New creates a backend for the given selector. SelectorAuto probes for
// flatpak-spawn first — a container-aware delegation helper takes
// precedence whenever the host is already sandboxed and exposes one —
// then falls back to bwrap's namespace isolation, then fails closed; it
// never falls back to SelectorNotSandboxed on its own, that requires an
// explicit caller choice (or an explicit GLYCIN_SANDBOX=not-sandboxed).
func New(sel Selector, cfg Config) (Backend, error) {
	switch sel {
	case SelectorBwrap:
		return newBwrapBackend(cfg)
	case SelectorFlatpakSpawn:
		return newFlatpakSpawnBackend(cfg)
	case SelectorNotSandboxed:
		return newFallback(cfg)
	case SelectorAuto:
		if b, err := newFlatpakSpawnBackend(cfg); err == nil {
			return b, nil
		}
		if b, err := newBwrapBackend(cfg); err == nil {
			return b, nil
		}
		return nil, newEnforcementError(cfg)
	default:
		return nil, fmt.Errorf("sandbox: unknown GLYCIN_SANDBOX value %q", sel)
	}
}

func newEnforcementError(cfg Config) *EnforcementError {
	var gaps []string
	gaps = append(gaps, "namespace isolation")
	if cfg.Isolation == Strict {
		gaps = append(gaps, "network isolation")
	}
	if cfg.MemLimit > 0 {
		gaps = append(gaps, "memory limit")
	}
	return &EnforcementError{Gaps: gaps, Platform: platformHelp()}
}

func platformHelp() string {
	switch runtime.GOOS {
	case "linux":
		return "Linux: requires bubblewrap (bwrap) on PATH, or flatpak-spawn when running inside a Flatpak sandbox"
	default:
		return fmt.Sprintf("platform %s: no sandbox backend available", runtime.GOOS)
	}
}
