//go:build linux

package memfd

import (
	"testing"
)

func TestCreateAndWrite(t *testing.T) {
	f, err := Create("test-blob", 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte("0123456789abcdef"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	st, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Size() != 16 {
		t.Fatalf("Size = %d, want 16", st.Size())
	}
}

func TestSealThenVerify(t *testing.T) {
	f, err := Create("test-seal", 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if err := Seal(f, 3); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := VerifySeals(f); err != nil {
		t.Fatalf("VerifySeals after Seal: %v", err)
	}
}

func TestVerifySealsFailsOnUnsealedFile(t *testing.T) {
	f, err := Create("test-unsealed", 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if err := VerifySeals(f); err == nil {
		t.Fatal("expected VerifySeals to fail on a memfd that was never sealed")
	}
}

func TestWriteAfterSealFails(t *testing.T) {
	f, err := Create("test-write-after-seal", 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if err := Seal(f, 3); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := f.WriteAt([]byte("12345678"), 0); err == nil {
		t.Fatal("expected WriteAt to fail after F_SEAL_WRITE")
	}
}
