package loaderconf

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDescriptor(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadScalarMimeType(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "png.conf", "exec: /usr/libexec/glycin-png\nmime_types: image/png\n")

	d, err := Load(filepath.Join(dir, "png.conf"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.MimeTypes) != 1 || d.MimeTypes[0] != "image/png" {
		t.Fatalf("MimeTypes = %v, want [image/png]", d.MimeTypes)
	}
}

func TestLoadSequenceMimeTypes(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "gif.conf", "exec: /usr/libexec/glycin-gif\nmime_types:\n  - image/gif\n  - image/x-gif\n")

	d, err := Load(filepath.Join(dir, "gif.conf"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.MimeTypes) != 2 {
		t.Fatalf("MimeTypes = %v, want 2 entries", d.MimeTypes)
	}
}

func TestLoadDirSkipsNonConfFiles(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "png.conf", "exec: /usr/libexec/glycin-png\nmime_types: image/png\n")
	writeDescriptor(t, dir, "README.md", "not a descriptor\n")

	descs, errs := LoadDir(dir)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(descs) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(descs))
	}
}

func TestLoadDirRecordsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "bad.conf", "exec: [not, a, string\n")

	descs, errs := LoadDir(dir)
	if len(descs) != 0 {
		t.Fatalf("got %d descriptors from malformed dir, want 0", len(descs))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
}

func TestLoadDirMissingDirIsNotFatal(t *testing.T) {
	descs, errs := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if descs != nil || errs != nil {
		t.Fatalf("got (%v, %v), want (nil, nil) for missing dir", descs, errs)
	}
}
