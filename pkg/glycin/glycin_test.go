//go:build linux

package glycin

import (
	"bytes"
	"io"
	"testing"
)

type readerAt struct{ data []byte }

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestEstimateBudgetAppliesMultiplierAndFloor(t *testing.T) {
	if got := estimateBudget(1024); got != 1<<20 {
		t.Fatalf("estimateBudget(1024) = %d, want floor of 1MiB", got)
	}
	if got := estimateBudget(10 << 20); got != 80<<20 {
		t.Fatalf("estimateBudget(10MiB) = %d, want 80MiB", got)
	}
}

func TestSniffDetectsPNG(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	mime, err := sniff(readerAt{data: pngHeader})
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if mime != "image/png" {
		t.Fatalf("sniff = %q, want image/png", mime)
	}
}

func TestSniffShortInputDoesNotError(t *testing.T) {
	mime, err := sniff(readerAt{data: []byte{0x01, 0x02}})
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if mime == "" {
		t.Fatal("sniff returned empty mime for short input")
	}
}

func TestMinInt64(t *testing.T) {
	if minInt64(3, 5) != 3 {
		t.Fatal("minInt64(3, 5) != 3")
	}
	if minInt64(9, 2) != 2 {
		t.Fatal("minInt64(9, 2) != 2")
	}
}

func TestMaterializeInputSealsExactBytes(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 300*1024)
	f, err := materializeInput(readerAt{data: payload}, int64(len(payload)))
	if err != nil {
		t.Fatalf("materializeInput: %v", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Size() != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", st.Size(), len(payload))
	}

	got := make([]byte, len(payload))
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("materialized memfd contents do not match input")
	}

	if _, err := f.WriteAt([]byte{0x00}, 0); err == nil {
		t.Fatal("expected write to sealed memfd to fail")
	}
}
