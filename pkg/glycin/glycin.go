// Package glycin is the public façade over this repository's sandboxed
// image-decoding pipeline: build a Loader, call Load to spawn a
// sandboxed decoder process for the image, then pull frames from the
// returned Image until Close.
package glycin

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/glycin-go/internal/budget"
	"github.com/ehrlich-b/glycin-go/internal/config"
	"github.com/ehrlich-b/glycin-go/internal/errs"
	"github.com/ehrlich-b/glycin-go/internal/loaderconf"
	"github.com/ehrlich-b/glycin-go/internal/logger"
	"github.com/ehrlich-b/glycin-go/internal/memfd"
	"github.com/ehrlich-b/glycin-go/internal/orchestrator"
	"github.com/ehrlich-b/glycin-go/internal/sandbox"
)

// Selector names a sandbox backend (re-exported so callers don't need
// to import internal/sandbox directly).
type Selector = sandbox.Selector

const (
	SelectorAuto         = sandbox.SelectorAuto
	SelectorBwrap        = sandbox.SelectorBwrap
	SelectorFlatpakSpawn = sandbox.SelectorFlatpakSpawn
	SelectorNotSandboxed = sandbox.SelectorNotSandboxed
)

var (
	registryOnce sync.Once
	registry     *loaderconf.Registry

	budgetOnce   sync.Once
	sharedBudget *budget.Budget

	runtimeCfgOnce sync.Once
	runtimeCfg     *config.RuntimeConfig
)

func runtimeConfig() *config.RuntimeConfig {
	runtimeCfgOnce.Do(func() {
		mgr := config.NewManager()
		if dir, err := config.GetUserConfigDir(); err == nil {
			if err := mgr.Load(dir); err != nil {
				logger.Warn("glycin: load runtime config", "error", err)
			}
		}
		runtimeCfg = mgr.Get()
	})
	return runtimeCfg
}

func loaderRegistry() *loaderconf.Registry {
	registryOnce.Do(func() {
		dirs, err := config.GetLoaderConfigDirs()
		if err != nil {
			logger.Warn("glycin: resolve loader config dirs", "error", err)
		}
		registry = loaderconf.NewRegistry(dirs)
	})
	return registry
}

func memoryBudget() *budget.Budget {
	budgetOnce.Do(func() {
		sharedBudget = budget.New(runtimeConfig().MemoryBudgetFraction, 32)
	})
	return sharedBudget
}

// Loader builds a single decode request. Construct with New, apply any
// chainable options, then call Load.
type Loader struct {
	source    io.ReaderAt
	size      int64
	sandbox   sandbox.Selector
	memCap    uint64
	mime      string
	cancel    <-chan struct{}
	graceKill time.Duration
}

// New starts building a decode request for source, which provides size
// bytes of encoded image data.
func New(source io.ReaderAt, size int64) *Loader {
	graceKill := time.Duration(runtimeConfig().GraceKillTimeoutMS) * time.Millisecond
	return &Loader{source: source, size: size, graceKill: graceKill}
}

// Sandbox pins which sandbox backend to use, overriding auto-detection
// and the GLYCIN_SANDBOX environment variable for this request.
func (l *Loader) Sandbox(sel Selector) *Loader {
	l.sandbox = sel
	return l
}

// MemoryCap bounds how much memory the spawned decoder may commit,
// enforced by both the process-wide budget and the sandbox's own
// cgroup/prlimit ceiling.
func (l *Loader) MemoryCap(bytes uint64) *Loader {
	l.memCap = bytes
	return l
}

// MIME pins the MIME type to decode with, skipping magic-number
// sniffing.
func (l *Loader) MIME(mime string) *Loader {
	l.mime = mime
	return l
}

// Cancel arranges for the in-flight decode to be abandoned the moment ch
// is closed or receives a value.
func (l *Loader) Cancel(ch <-chan struct{}) *Loader {
	l.cancel = ch
	return l
}

// Load spawns a sandboxed decoder for source and performs the Init
// handshake, returning an Image ready to serve frames.
func (l *Loader) Load(ctx context.Context) (*Image, error) {
	mime := l.mime
	if mime == "" {
		detected, err := sniff(l.source)
		if err != nil {
			return nil, err
		}
		mime = detected
	}

	desc := loaderRegistry().Resolve(mime)
	if desc == nil {
		return nil, errs.New(errs.NoLoaderConfigured, "no loader configured for "+mime)
	}

	sel, err := orchestrator.ResolveSandbox(l.sandbox)
	if err != nil {
		return nil, errs.Wrap(errs.SandboxUnavailable, "resolve sandbox selector", err)
	}

	estimate := l.memCap
	if estimate == 0 {
		estimate = estimateBudget(l.size)
	}
	release, err := memoryBudget().Reserve(ctx, estimate)
	if err != nil {
		return nil, err
	}

	backendCfg := sandbox.Config{
		Isolation:     sandbox.ParseLevel(desc.SandboxLevel),
		SessionID:     uuid.NewString(),
		MemLimit:      estimate,
		MaxFDs:        64,
		ExtraSyscalls: desc.ExtraSyscalls,
	}
	backend, err := sandbox.New(sel, backendCfg)
	if err != nil {
		release()
		return nil, err
	}

	input, err := materializeInput(l.source, l.size)
	if err != nil {
		release()
		backend.Destroy()
		return nil, err
	}

	dp, err := orchestrator.Spawn(ctx, backend, desc.Exec, mime, input, l.graceKill)
	if err != nil {
		release()
		return nil, err
	}

	if l.cancel != nil {
		go func() {
			<-l.cancel
			dp.Cancel()
		}()
	}

	return &Image{dp: dp, release: release}, nil
}

// estimateBudget picks a decoded-buffer headroom estimate from the
// encoded size when the caller didn't supply one: decoded RGBA pixels
// can be many times larger than the compressed source, so a flat
// multiplier with a floor avoids starving the budget check on tiny
// inputs.
func estimateBudget(encodedSize int64) uint64 {
	estimate := uint64(encodedSize) * 8
	if estimate < 1<<20 {
		estimate = 1 << 20
	}
	return estimate
}

// sniff reads the first 512 bytes of source and classifies them with
// net/http's magic-number table — a general shared-mime-info database
// is out of scope for this repository; this
// covers the reference loaders' own formats well enough for callers
// that don't already know the MIME type.
func sniff(source io.ReaderAt) (string, error) {
	buf := make([]byte, 512)
	n, err := source.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return "", errs.Wrap(errs.IO, "read header for mime sniff", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

// materializeInput copies source into a sealed memfd: the decoder
// process receives this as its one inherited input fd, immutable for
// the lifetime of the request.
func materializeInput(source io.ReaderAt, size int64) (*os.File, error) {
	f, err := memfd.Create("glycin-input", size)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 256*1024)
	var off int64
	for off < size {
		n, err := source.ReadAt(buf[:minInt64(int64(len(buf)), size-off)], off)
		if n > 0 {
			if _, werr := f.WriteAt(buf[:n], off); werr != nil {
				f.Close()
				return nil, errs.Wrap(errs.IO, "write input memfd", werr)
			}
			off += int64(n)
		}
		if err != nil {
			if err == io.EOF && off >= size {
				break
			}
			f.Close()
			return nil, errs.Wrap(errs.IO, "read input source", err)
		}
	}
	if err := memfd.Seal(f, 3); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
