package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/ehrlich-b/glycin-go/internal/logger"
)

// notSandboxedBackend runs the decoder as a direct child process with no
// namespace or seccomp confinement. It is only ever constructed when the
// caller explicitly selected SelectorNotSandboxed (GLYCIN_SANDBOX=not-sandboxed)
// — spec.md forbids silently degrading to this backend.
type notSandboxedBackend struct {
	cfg    Config
	tmpDir string
}

func newFallback(cfg Config) (Backend, error) {
	dir, err := os.MkdirTemp("", "glycin-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("create sandbox tmpdir: %w", err)
	}
	logger.Warn("sandbox: running decoder without isolation (GLYCIN_SANDBOX=not-sandboxed)", "tmpdir", dir)
	return &notSandboxedBackend{cfg: cfg, tmpDir: dir}, nil
}

func (s *notSandboxedBackend) Exec(ctx context.Context, name string, args []string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = s.tmpDir
	cmd.Env = []string{"PATH=/usr/bin:/bin", "HOME=" + s.tmpDir, "TMPDIR=" + s.tmpDir}
	return cmd, nil
}

func (s *notSandboxedBackend) PostStart(pid int) error {
	return nil
}

func (s *notSandboxedBackend) Destroy() error {
	return os.RemoveAll(s.tmpDir)
}
