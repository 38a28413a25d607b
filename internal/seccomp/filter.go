//go:build linux

// Package seccomp compiles the allow-list BPF program the decoder runtime
// installs before touching any untrusted image bytes. Unlike a deny-list
// filter, a decoder sandbox must default-deny: an image codec has no business calling mount, ptrace, or
// socket, so only syscalls known to be needed are let through.
package seccomp

import (
	"sync"

	"golang.org/x/sys/unix"
)

const (
	retAllow = 0x7fff0000
	retErrno = 0x00050000
	retTrap  = 0x00030000
)

// baseAllowSyscalls is the syscall set every decoder needs regardless of
// codec: memory management, the IPC socket round trip, and process exit.
// Anything not on this list (plus a loader's ExtraSyscalls) is denied.
var baseAllowSyscalls = []uintptr{
	unix.SYS_READ,
	unix.SYS_WRITE,
	unix.SYS_CLOSE,
	unix.SYS_FSTAT,
	unix.SYS_LSEEK,
	unix.SYS_MMAP,
	unix.SYS_MUNMAP,
	unix.SYS_MPROTECT,
	unix.SYS_BRK,
	unix.SYS_RT_SIGACTION,
	unix.SYS_RT_SIGPROCMASK,
	unix.SYS_RT_SIGRETURN,
	unix.SYS_POLL,
	unix.SYS_RECVMSG,
	unix.SYS_SENDMSG,
	unix.SYS_EXIT,
	unix.SYS_EXIT_GROUP,
	unix.SYS_FUTEX,
	unix.SYS_GETRANDOM,
	unix.SYS_MADVISE,
	unix.SYS_CLOCK_GETTIME,
	unix.SYS_GETPID,
	unix.SYS_GETTID,
	unix.SYS_TGKILL,
	unix.SYS_SET_ROBUST_LIST,
	unix.SYS_RSEQ,
	unix.SYS_SCHED_YIELD,
	unix.SYS_PRCTL,
}

// syscallNumbers maps a syscall name to its number on this architecture,
// used to resolve a LoaderDescriptor's ExtraSyscalls into the compiled
// program and to publish the audit Manifest.
var syscallNumbers = map[string]uintptr{
	"read": unix.SYS_READ, "write": unix.SYS_WRITE, "close": unix.SYS_CLOSE,
	"fstat": unix.SYS_FSTAT, "lseek": unix.SYS_LSEEK, "mmap": unix.SYS_MMAP,
	"munmap": unix.SYS_MUNMAP, "mprotect": unix.SYS_MPROTECT, "brk": unix.SYS_BRK,
	"openat": unix.SYS_OPENAT, "pread64": unix.SYS_PREAD64, "ftruncate": unix.SYS_FTRUNCATE,
	"fcntl": unix.SYS_FCNTL, "memfd_create": unix.SYS_MEMFD_CREATE,
	"madvise": unix.SYS_MADVISE, "futex": unix.SYS_FUTEX,
	"rt_sigaction": unix.SYS_RT_SIGACTION, "rt_sigprocmask": unix.SYS_RT_SIGPROCMASK,
	"rt_sigreturn": unix.SYS_RT_SIGRETURN, "poll": unix.SYS_POLL, "recvmsg": unix.SYS_RECVMSG,
	"sendmsg": unix.SYS_SENDMSG, "exit": unix.SYS_EXIT, "exit_group": unix.SYS_EXIT_GROUP,
	"getrandom": unix.SYS_GETRANDOM, "clock_gettime": unix.SYS_CLOCK_GETTIME,
	"getpid": unix.SYS_GETPID, "gettid": unix.SYS_GETTID, "tgkill": unix.SYS_TGKILL,
	"set_robust_list": unix.SYS_SET_ROBUST_LIST, "rseq": unix.SYS_RSEQ,
	"sched_yield": unix.SYS_SCHED_YIELD, "prctl": unix.SYS_PRCTL,
}

// Manifest records the resolved set of allowed syscall names for a given
// loader, published for audit logging so an operator can see exactly
// what a codec's filter admits.
type Manifest struct {
	Names []string
}

// Build compiles an allow-list BPF program from the base allow-set plus
// any loader-specific extra syscall names. The compiled program is a
// pure function of its inputs, so callers typically cache it behind a
// sync.Once per loader.
func Build(extra []string) ([]unix.SockFilter, *Manifest, error) {
	allowed := make(map[uintptr]bool, len(baseAllowSyscalls)+len(extra))
	names := make([]string, 0, len(baseAllowSyscalls)+len(extra))
	for _, nr := range baseAllowSyscalls {
		allowed[nr] = true
	}
	for name, nr := range syscallNumbers {
		if allowed[nr] {
			names = append(names, name)
		}
	}
	for _, name := range extra {
		nr, ok := syscallNumbers[name]
		if !ok {
			continue
		}
		if !allowed[nr] {
			allowed[nr] = true
			names = append(names, name)
		}
	}

	nrs := make([]uintptr, 0, len(allowed))
	for nr := range allowed {
		nrs = append(nrs, nr)
	}

	// BPF program shape (allow-list, inverted from a deny-list compiler):
	// load syscall nr, compare against each allowed value and jump to the
	// ALLOW instruction on match, otherwise fall through to DENY.
	n := len(nrs)
	prog := make([]unix.SockFilter, 0, n+3)
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS,
		K:    0, // offsetof(struct seccomp_data, nr)
	})
	for i, nr := range nrs {
		jmpToAllow := uint8(n - i)
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
			Jt:   jmpToAllow,
			Jf:   0,
			K:    uint32(nr),
		})
	}
	// Fallthrough: deny with a trap so InstallTrapHandler can log the
	// blocked call before the kernel kills or EPERMs it.
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_RET | unix.BPF_K,
		K:    retTrap,
	})
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_RET | unix.BPF_K,
		K:    retAllow,
	})

	return prog, &Manifest{Names: names}, nil
}

var (
	cachedOnce sync.Once
	cachedProg []unix.SockFilter
	cachedMan  *Manifest
)

// BuildBase returns the base allow-list program with no loader-specific
// extensions, compiled once and cached — this is the "initialization
// race" the process-wide program must avoid recompiling on every decode.
func BuildBase() ([]unix.SockFilter, *Manifest) {
	cachedOnce.Do(func() {
		cachedProg, cachedMan, _ = Build(nil)
	})
	return cachedProg, cachedMan
}
