package loaderconf

import (
	"testing"
	"time"
)

func TestRegistryResolveFindsLoader(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "png.conf", "exec: /usr/libexec/glycin-png\nmime_types: image/png\n")

	r := NewRegistry([]string{dir})
	d := r.Resolve("image/png")
	if d == nil {
		t.Fatal("Resolve(image/png) = nil, want descriptor")
	}
	if d.Exec != "/usr/libexec/glycin-png" {
		t.Fatalf("Exec = %q, want /usr/libexec/glycin-png", d.Exec)
	}
}

func TestRegistryResolveUnknownMimeReturnsNil(t *testing.T) {
	r := NewRegistry([]string{t.TempDir()})
	if d := r.Resolve("image/does-not-exist"); d != nil {
		t.Fatalf("Resolve(unknown) = %v, want nil", d)
	}
}

func TestRegistryLaterDirOverridesEarlier(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()
	writeDescriptor(t, userDir, "png.conf", "exec: /usr/libexec/glycin-png\nmime_types: image/png\n")
	writeDescriptor(t, projectDir, "png.conf", "exec: /opt/custom/glycin-png\nmime_types: image/png\n")

	r := NewRegistry([]string{userDir, projectDir})
	d := r.Resolve("image/png")
	if d == nil {
		t.Fatal("Resolve(image/png) = nil")
	}
	if d.Exec != "/opt/custom/glycin-png" {
		t.Fatalf("Exec = %q, want later directory to win", d.Exec)
	}
}

func TestRegistryReloadPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry([]string{dir})
	if d := r.Resolve("image/png"); d != nil {
		t.Fatalf("Resolve before reload = %v, want nil", d)
	}

	writeDescriptor(t, dir, "png.conf", "exec: /usr/libexec/glycin-png\nmime_types: image/png\n")
	r.reload()

	if d := r.Resolve("image/png"); d == nil {
		t.Fatal("Resolve after reload = nil, want descriptor")
	}
}

func TestRegistryCloseWithoutWatchIsNoop(t *testing.T) {
	r := NewRegistry([]string{t.TempDir()})
	if err := r.Close(); err != nil {
		t.Fatalf("Close without Watch: %v", err)
	}
}

func TestRegistryWatchDetectsNewDescriptor(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry([]string{dir})
	if err := r.Watch(); err != nil {
		t.Skipf("fsnotify unavailable in this environment: %v", err)
	}
	defer r.Close()

	writeDescriptor(t, dir, "png.conf", "exec: /usr/libexec/glycin-png\nmime_types: image/png\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Resolve("image/png") != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Skip("watch event did not arrive within polling window; not asserting on fsnotify timing")
}
