package audit

import "testing"

func intPtr(v int) *int { return &v }

func TestRecordAndListByMIME(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordFailure("image/png", "/usr/libexec/glycin-loaders/png", "decoder-crashed", "signal 11", nil, intPtr(11), "panic: ..."); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordFailure("image/gif", "/usr/libexec/glycin-loaders/gif", "invalid-image", "bad header", intPtr(1), nil, ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	pngFailures, err := s.ListByMIME("image/png")
	if err != nil {
		t.Fatalf("list by mime: %v", err)
	}
	if len(pngFailures) != 1 {
		t.Fatalf("got %d png failures, want 1", len(pngFailures))
	}
	if pngFailures[0].Kind != "decoder-crashed" {
		t.Errorf("kind = %q, want decoder-crashed", pngFailures[0].Kind)
	}
	if pngFailures[0].Signal == nil || *pngFailures[0].Signal != 11 {
		t.Errorf("signal = %v, want 11", pngFailures[0].Signal)
	}
	if pngFailures[0].ExitCode != nil {
		t.Errorf("exit code = %v, want nil", pngFailures[0].ExitCode)
	}
}

func TestListByLoader(t *testing.T) {
	s := openTestStore(t)
	s.RecordFailure("image/png", "/loaders/png", "decoder-crashed", "oops", nil, intPtr(11), "")
	s.RecordFailure("image/png", "/loaders/png", "timeout", "slow", nil, nil, "")
	s.RecordFailure("image/jpeg", "/loaders/jpeg", "decoder-crashed", "oops", nil, intPtr(6), "")

	got, err := s.ListByLoader("/loaders/png")
	if err != nil {
		t.Fatalf("list by loader: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
}

func TestRecent(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		s.RecordFailure("image/png", "/loaders/png", "decoder-crashed", "oops", nil, intPtr(11), "")
	}

	recent, err := s.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d, want 3", len(recent))
	}
}
