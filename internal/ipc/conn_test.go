package ipc

import (
	"os"
	"testing"
)

func newConnPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	hostFile, childFile, err := Socketpair()
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	host, err := FromFile(hostFile)
	if err != nil {
		t.Fatalf("FromFile(host): %v", err)
	}
	child, err := FromFile(childFile)
	if err != nil {
		t.Fatalf("FromFile(child): %v", err)
	}
	t.Cleanup(func() { host.Close(); child.Close() })
	return host, child
}

func TestSendRecvRoundTrip(t *testing.T) {
	host, child := newConnPair(t)

	init := Init{ProtocolVersion: ProtocolVersion, MIME: "image/png", InputFDIndex: 3}
	if err := host.Send(MsgInit, init); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got Init
	tp, fds, err := child.Recv(&got)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if tp != MsgInit {
		t.Fatalf("type = %v, want MsgInit", tp)
	}
	if len(fds) != 0 {
		t.Fatalf("fds = %v, want none", fds)
	}
	if got != init {
		t.Fatalf("got %+v, want %+v", got, init)
	}
}

func TestSendRecvCarriesFDs(t *testing.T) {
	host, child := newConnPair(t)

	tmp, err := os.CreateTemp(t.TempDir(), "ipc-fd-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer tmp.Close()

	if err := host.Send(MsgFrameReply, FrameReply{Width: 4, Height: 2}, int(tmp.Fd())); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var reply FrameReply
	tp, fds, err := child.Recv(&reply)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if tp != MsgFrameReply {
		t.Fatalf("type = %v, want MsgFrameReply", tp)
	}
	if len(fds) != 1 {
		t.Fatalf("got %d fds, want 1", len(fds))
	}
	os.NewFile(uintptr(fds[0]), "").Close()
	if reply.Width != 4 || reply.Height != 2 {
		t.Fatalf("reply = %+v, want 4x2", reply)
	}
}

func TestRecvRawThenDecode(t *testing.T) {
	host, child := newConnPair(t)

	if err := host.Send(MsgTerminate, Terminate{}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	tp, body, fds, err := child.RecvRaw()
	if err != nil {
		t.Fatalf("RecvRaw: %v", err)
	}
	if tp != MsgTerminate {
		t.Fatalf("type = %v, want MsgTerminate", tp)
	}
	if len(fds) != 0 {
		t.Fatalf("fds = %v, want none", fds)
	}
	var term Terminate
	if err := Decode(body, &term); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestRecvNilOutSkipsDecode(t *testing.T) {
	host, child := newConnPair(t)

	if err := host.Send(MsgError, Error{Kind: 1, Message: "boom"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	tp, _, err := child.Recv(nil)
	if err != nil {
		t.Fatalf("Recv(nil): %v", err)
	}
	if tp != MsgError {
		t.Fatalf("type = %v, want MsgError", tp)
	}
}

func TestMsgTypeString(t *testing.T) {
	cases := map[MsgType]string{
		MsgInit:      "Init",
		MsgInitReply: "InitReply",
		MsgFrame:     "Frame",
		MsgTerminate: "Terminate",
		MsgType(99):  "Unknown",
	}
	for mt, want := range cases {
		if got := mt.String(); got != want {
			t.Errorf("MsgType(%d).String() = %q, want %q", mt, got, want)
		}
	}
}
