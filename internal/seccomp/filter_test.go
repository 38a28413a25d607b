//go:build linux

package seccomp

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestBuildIncludesBaseSyscalls(t *testing.T) {
	prog, manifest, err := Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(prog) == 0 {
		t.Fatal("Build returned an empty program")
	}
	if len(manifest.Names) == 0 {
		t.Fatal("Build returned an empty manifest")
	}
	found := false
	for _, n := range manifest.Names {
		if n == "read" {
			found = true
		}
	}
	if !found {
		t.Fatal("manifest missing 'read', expected in every base allow-set")
	}
}

func TestBuildAddsExtraSyscalls(t *testing.T) {
	_, base, err := Build(nil)
	if err != nil {
		t.Fatalf("Build(nil): %v", err)
	}
	_, withExtra, err := Build([]string{"openat", "fcntl"})
	if err != nil {
		t.Fatalf("Build(extra): %v", err)
	}
	if len(withExtra.Names) <= len(base.Names) {
		t.Fatalf("expected extra syscalls to grow the manifest: base=%d extra=%d", len(base.Names), len(withExtra.Names))
	}
}

func TestBuildIgnoresUnknownExtraSyscall(t *testing.T) {
	_, manifest, err := Build([]string{"definitely_not_a_real_syscall"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, n := range manifest.Names {
		if n == "definitely_not_a_real_syscall" {
			t.Fatal("unknown syscall name leaked into the manifest")
		}
	}
}

func TestBuildBaseIsCached(t *testing.T) {
	prog1, man1 := BuildBase()
	prog2, man2 := BuildBase()
	if len(prog1) != len(prog2) {
		t.Fatalf("BuildBase returned different program lengths across calls: %d vs %d", len(prog1), len(prog2))
	}
	if len(man1.Names) != len(man2.Names) {
		t.Fatalf("BuildBase returned different manifests across calls: %d vs %d", len(man1.Names), len(man2.Names))
	}
}

func TestProgramEndsWithAllowReturn(t *testing.T) {
	prog, _, err := Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	last := prog[len(prog)-1]
	if last.Code != unix.BPF_RET|unix.BPF_K || last.K != retAllow {
		t.Fatalf("expected final instruction to be RET ALLOW, got code=%#x k=%#x", last.Code, last.K)
	}
}
