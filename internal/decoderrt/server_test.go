package decoderrt

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ehrlich-b/glycin-go/internal/ipc"
	"github.com/ehrlich-b/glycin-go/internal/mocks"
)

func newTestPair(t *testing.T) (*ipc.Conn, *ipc.Conn) {
	t.Helper()
	hostFile, childFile, err := ipc.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	host, err := ipc.FromFile(hostFile)
	if err != nil {
		t.Fatalf("FromFile(host): %v", err)
	}
	child, err := ipc.FromFile(childFile)
	if err != nil {
		t.Fatalf("FromFile(child): %v", err)
	}
	return host, child
}

func newTestInputFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "glycin-input-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestInitFrameTerminateRoundTrip(t *testing.T) {
	host, child := newTestPair(t)
	defer host.Close()

	registry := NewRegistry()
	loader := &mocks.FakeLoader{
		Info: ImageInfo{Width: 4, Height: 2, FrameCount: 1, MemoryFormat: "R8G8B8A8"},
		Frames: []RawFrame{
			{Width: 4, Height: 2, Stride: 16, MemoryFormat: "R8G8B8A8", Pixels: make([]byte, 32)},
		},
	}
	registry.Register("image/x-fake", func() Loader { return loader })

	srv := NewServer(child, registry, 3)
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	input := newTestInputFile(t)
	init := ipc.Init{ProtocolVersion: ipc.ProtocolVersion, MIME: "image/x-fake", InputFDIndex: int(input.Fd())}
	if err := host.Send(ipc.MsgInit, init); err != nil {
		t.Fatalf("send Init: %v", err)
	}

	var reply ipc.InitReply
	tp, _, err := host.Recv(&reply)
	if err != nil {
		t.Fatalf("recv InitReply: %v", err)
	}
	if tp != ipc.MsgInitReply {
		t.Fatalf("got message type %v, want InitReply", tp)
	}
	if reply.Width != 4 || reply.Height != 2 {
		t.Fatalf("InitReply dims = %dx%d, want 4x2", reply.Width, reply.Height)
	}

	if err := host.Send(ipc.MsgFrame, ipc.Frame{Index: 0}); err != nil {
		t.Fatalf("send Frame: %v", err)
	}
	var frameReply ipc.FrameReply
	tp, fds, err := host.Recv(&frameReply)
	if err != nil {
		t.Fatalf("recv FrameReply: %v", err)
	}
	if tp != ipc.MsgFrameReply {
		t.Fatalf("got message type %v, want FrameReply", tp)
	}
	if len(fds) != 1 {
		t.Fatalf("FrameReply carried %d fds, want 1", len(fds))
	}
	os.NewFile(uintptr(fds[0]), "").Close()

	if err := host.Send(ipc.MsgTerminate, ipc.Terminate{}); err != nil {
		t.Fatalf("send Terminate: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after Terminate")
	}

	if loader.ProbeCalls != 1 {
		t.Fatalf("ProbeCalls = %d, want 1", loader.ProbeCalls)
	}
	if loader.FrameCalls != 1 {
		t.Fatalf("FrameCalls = %d, want 1", loader.FrameCalls)
	}
}

func TestUnknownMimeRejectedAtInit(t *testing.T) {
	host, child := newTestPair(t)
	defer host.Close()

	registry := NewRegistry()
	srv := NewServer(child, registry, 3)
	go srv.Run(context.Background())

	input := newTestInputFile(t)
	init := ipc.Init{ProtocolVersion: ipc.ProtocolVersion, MIME: "image/unknown", InputFDIndex: int(input.Fd())}
	if err := host.Send(ipc.MsgInit, init); err != nil {
		t.Fatalf("send Init: %v", err)
	}

	tp, _, err := host.Recv(nil)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if tp != ipc.MsgError {
		t.Fatalf("got message type %v, want Error", tp)
	}
}
