//go:build linux

package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/glycin-go/internal/logger"
	"github.com/ehrlich-b/glycin-go/internal/seccomp"
)

// bwrapBackend isolates a decoder by shelling out to bubblewrap, which
// already does the unshare/pivot_root/mount dance this project would
// otherwise have to reimplement and re-audit. The compiled seccomp
// program is handed to bwrap through an extra inherited file descriptor
// via its --seccomp FD flag.
type bwrapBackend struct {
	cfg     Config
	tmpDir  string
	cgroup  *cgroupManager
}

var bwrapPathOnce sync.Once
var bwrapPath string
var bwrapErr error

func lookupBwrap() (string, error) {
	bwrapPathOnce.Do(func() {
		bwrapPath, bwrapErr = exec.LookPath("bwrap")
	})
	return bwrapPath, bwrapErr
}

func newBwrapBackend(cfg Config) (Backend, error) {
	if _, err := lookupBwrap(); err != nil {
		return nil, fmt.Errorf("bwrap backend: %w", err)
	}
	dir, err := os.MkdirTemp("", "glycin-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("create sandbox tmpdir: %w", err)
	}
	cg, err := newCgroupManager(cfg.SessionID, cfg.MemLimit, 16)
	if err != nil {
		logger.Warn("sandbox: cgroup setup failed, relying on prlimit only", "error", err)
	}
	logger.Debug("sandbox: bwrap backend ready", "tmpdir", dir, "isolation", cfg.Isolation.String())
	return &bwrapBackend{cfg: cfg, tmpDir: dir, cgroup: cg}, nil
}

func (s *bwrapBackend) Exec(ctx context.Context, name string, args []string) (*exec.Cmd, error) {
	prog, manifest, err := seccomp.Build(s.cfg.ExtraSyscalls)
	if err != nil {
		return nil, fmt.Errorf("compile seccomp filter: %w", err)
	}
	seccompFile, err := writeSeccompProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("materialize seccomp program: %w", err)
	}
	logger.Debug("sandbox: compiled seccomp filter", "syscalls_allowed", len(manifest.Names))

	bwArgs := []string{
		"--unshare-all",
		"--die-with-parent",
		"--new-session",
		"--proc", "/proc",
		"--dev", "/dev",
		"--ro-bind", "/usr", "/usr",
		"--ro-bind", "/lib", "/lib",
		"--symlink", "/usr/lib64", "/lib64",
		"--tmpfs", "/tmp",
		"--chdir", "/tmp",
	}
	for _, m := range s.cfg.Mounts {
		flag := "--ro-bind"
		if !m.ReadOnly {
			flag = "--bind"
		}
		bwArgs = append(bwArgs, flag, m.Source, m.Target)
	}
	if s.cfg.Isolation >= Network {
		bwArgs = append(bwArgs, "--share-net")
	}
	// seccompFile is fd 3 onward once passed through ExtraFiles.
	bwArgs = append(bwArgs, "--seccomp", "3")
	bwArgs = append(bwArgs, "--", name)
	bwArgs = append(bwArgs, args...)

	path, _ := lookupBwrap()
	cmd := exec.CommandContext(ctx, path, bwArgs...)
	cmd.ExtraFiles = []*os.File{seccompFile}
	cmd.Dir = s.tmpDir
	cmd.Env = []string{"PATH=/usr/bin:/bin", "HOME=" + s.tmpDir, "TMPDIR=" + s.tmpDir}
	return cmd, nil
}

// writeSeccompProgram serializes a compiled BPF program into the binary
// format bwrap's --seccomp FD flag expects: a flat array of
// struct sock_filter (8 bytes each, { uint16 code, uint8 jt, uint8 jf, uint32 k }).
func writeSeccompProgram(prog []unix.SockFilter) (*os.File, error) {
	f, err := os.CreateTemp("", "glycin-seccomp-*")
	if err != nil {
		return nil, err
	}
	os.Remove(f.Name()) // unlink immediately; the fd itself is what gets passed
	buf := make([]byte, 0, len(prog)*8)
	for _, ins := range prog {
		buf = append(buf,
			byte(ins.Code), byte(ins.Code>>8),
			ins.Jt, ins.Jf,
			byte(ins.K), byte(ins.K>>8), byte(ins.K>>16), byte(ins.K>>24),
		)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (s *bwrapBackend) PostStart(pid int) error {
	if s.cgroup != nil {
		if err := s.cgroup.AddPID(pid); err != nil {
			logger.Warn("sandbox: failed to move decoder into cgroup", "pid", pid, "error", err)
		}
	}
	if s.cfg.MemLimit > 0 {
		lim := unix.Rlimit{Cur: s.cfg.MemLimit, Max: s.cfg.MemLimit}
		if err := unix.Prlimit(pid, unix.RLIMIT_AS, &lim, nil); err != nil {
			logger.Warn("sandbox: prlimit RLIMIT_AS failed", "pid", pid, "error", err)
		}
	}
	if s.cfg.CPULimit > 0 {
		lim := unix.Rlimit{Cur: uint64(s.cfg.CPULimit.Seconds()), Max: uint64(s.cfg.CPULimit.Seconds())}
		if err := unix.Prlimit(pid, unix.RLIMIT_CPU, &lim, nil); err != nil {
			logger.Warn("sandbox: prlimit RLIMIT_CPU failed", "pid", pid, "error", err)
		}
	}
	if s.cfg.MaxFDs > 0 {
		lim := unix.Rlimit{Cur: uint64(s.cfg.MaxFDs), Max: uint64(s.cfg.MaxFDs)}
		if err := unix.Prlimit(pid, unix.RLIMIT_NOFILE, &lim, nil); err != nil {
			logger.Warn("sandbox: prlimit RLIMIT_NOFILE failed", "pid", pid, "error", err)
		}
	}
	return nil
}

func (s *bwrapBackend) Destroy() error {
	if s.cgroup != nil {
		s.cgroup.Destroy()
	}
	return os.RemoveAll(s.tmpDir)
}
