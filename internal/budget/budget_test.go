package budget

import (
	"context"
	"testing"

	"github.com/ehrlich-b/glycin-go/internal/errs"
)

func newTestBudget(t *testing.T, availableBytes uint64, fraction float64) *Budget {
	t.Helper()
	b := New(fraction, 1000)
	b.availFn = func() (uint64, error) { return availableBytes, nil }
	return b
}

func TestReserveWithinCap(t *testing.T) {
	b := newTestBudget(t, 1<<30, 0.5) // 1GiB available, 512MiB cap

	release, err := b.Reserve(context.Background(), 100<<20)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := b.Available(); got != 100<<20 {
		t.Fatalf("Available() = %d, want %d", got, 100<<20)
	}
	release()
	if got := b.Available(); got != 0 {
		t.Fatalf("Available() after release = %d, want 0", got)
	}
}

func TestReserveExceedsCapFails(t *testing.T) {
	b := newTestBudget(t, 100<<20, 0.5) // 100MiB available, 50MiB cap

	_, err := b.Reserve(context.Background(), 60<<20)
	if err == nil {
		t.Fatal("expected Reserve to fail when estimate exceeds the cap")
	}
	if errs.KindOf(err) != errs.MemoryBudgetExceeded {
		t.Fatalf("Kind = %v, want MemoryBudgetExceeded", errs.KindOf(err))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	b := newTestBudget(t, 1<<30, 0.8)

	release, err := b.Reserve(context.Background(), 10<<20)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	release()
	release()
	if got := b.Available(); got != 0 {
		t.Fatalf("Available() after double release = %d, want 0", got)
	}
}

func TestMultipleReservationsAccumulate(t *testing.T) {
	b := newTestBudget(t, 1<<30, 1.0)

	r1, err := b.Reserve(context.Background(), 100<<20)
	if err != nil {
		t.Fatalf("Reserve 1: %v", err)
	}
	r2, err := b.Reserve(context.Background(), 200<<20)
	if err != nil {
		t.Fatalf("Reserve 2: %v", err)
	}
	if got := b.Available(); got != 300<<20 {
		t.Fatalf("Available() = %d, want %d", got, 300<<20)
	}
	r1()
	if got := b.Available(); got != 200<<20 {
		t.Fatalf("Available() after r1 release = %d, want %d", got, 200<<20)
	}
	r2()
}
