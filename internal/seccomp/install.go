//go:build linux

package seccomp

import (
	"fmt"
	"os"
	"os/signal"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/glycin-go/internal/errs"
)

// InstallTrapHandler registers a SIGSYS handler that writes a fixed
// "blocked syscall" line to stderr and exits with status 159. The
// handler receives the signal through os/signal, so it does not report
// the blocked syscall number or the faulting program counter. It must be called before Load so the handler is
// already armed when the first denied syscall fires. This is the only
// supported sandbox-escape debugging channel: the decoder has no other
// way to report what it tried to do.
func InstallTrapHandler() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGSYS)
	go func() {
		for range sigs {
			fmt.Fprintln(os.Stderr, "glycin-decoder: blocked syscall trapped by seccomp filter, exiting")
			os.Exit(159) // 128 + SIGSYS(31), matching the exit-code convention for signal deaths
		}
	}()
}

// Load installs prog as the process's seccomp filter via the raw
// PR_SET_NO_NEW_PRIVS + SECCOMP_SET_MODE_FILTER syscall pair. Once
// installed the filter cannot be removed or loosened for the lifetime of
// the process.
func Load(prog []unix.SockFilter) error {
	if _, _, errno := unix.RawSyscall(unix.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0); errno != 0 {
		return errs.Wrap(errs.SandboxSpawnFailed, "prctl(PR_SET_NO_NEW_PRIVS)", errno)
	}

	fprog := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}
	if _, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, unix.SECCOMP_SET_MODE_FILTER, 0, uintptr(unsafe.Pointer(&fprog))); errno != 0 {
		return errs.Wrap(errs.SandboxSpawnFailed, "seccomp(SECCOMP_SET_MODE_FILTER)", errno)
	}
	return nil
}
