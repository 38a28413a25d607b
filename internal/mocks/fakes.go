// Package mocks provides hand-written fakes for orchestrator tests that
// must run without real namespaces/seccomp — CI containers frequently
// lack CAP_SYS_ADMIN, so these stand in for internal/sandbox.Backend and
// internal/decoderrt.Loader.
package mocks

import (
	"context"
	"os"
	"os/exec"

	"github.com/ehrlich-b/glycin-go/internal/decoderrt"
	"github.com/ehrlich-b/glycin-go/internal/sandbox"
)

// FakeBackend implements sandbox.Backend by running the command
// unmodified — good enough for orchestrator tests that exercise protocol
// and lifecycle logic, not real isolation.
type FakeBackend struct {
	PostStartCalls []int
	Destroyed      bool
}

func (f *FakeBackend) Exec(ctx context.Context, name string, args []string) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, name, args...), nil
}

func (f *FakeBackend) PostStart(pid int) error {
	f.PostStartCalls = append(f.PostStartCalls, pid)
	return nil
}

func (f *FakeBackend) Destroy() error {
	f.Destroyed = true
	return nil
}

var _ sandbox.Backend = (*FakeBackend)(nil)

// FakeLoader implements decoderrt.Loader by returning canned responses,
// for decoderrt/orchestrator tests that don't need a real codec.
type FakeLoader struct {
	Info       decoderrt.ImageInfo
	Frames     []decoderrt.RawFrame
	ProbeErr   error
	FrameErr   error
	ProbeCalls int
	FrameCalls int
}

func (f *FakeLoader) Probe(ctx context.Context, input *os.File, mime string) (decoderrt.ImageInfo, error) {
	f.ProbeCalls++
	return f.Info, f.ProbeErr
}

func (f *FakeLoader) Frame(ctx context.Context, sel decoderrt.FrameSelector, budget uint64) (decoderrt.RawFrame, error) {
	f.FrameCalls++
	if f.FrameErr != nil {
		return decoderrt.RawFrame{}, f.FrameErr
	}
	idx := sel.Index
	if idx < 0 {
		idx = f.FrameCalls - 1
	}
	if idx >= len(f.Frames) {
		idx = len(f.Frames) - 1
	}
	return f.Frames[idx], nil
}

func (f *FakeLoader) Edit(ctx context.Context, ops []decoderrt.EditOp) (decoderrt.RawFrame, error) {
	return decoderrt.RawFrame{}, nil
}

var _ decoderrt.Loader = (*FakeLoader)(nil)
