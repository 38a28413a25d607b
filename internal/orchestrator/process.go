package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/glycin-go/internal/errs"
	"github.com/ehrlich-b/glycin-go/internal/ipc"
	"github.com/ehrlich-b/glycin-go/internal/logger"
	"github.com/ehrlich-b/glycin-go/internal/sandbox"
)

// DecoderProcess owns exactly one sandboxed decoder child for the
// lifetime of one image request — spec.md forbids reusing a decoder
// process across requests. RequestFrame and RequestEdit are serialized:
// only one request may be in flight on the wire at a time.
type DecoderProcess struct {
	ID      string
	backend sandbox.Backend
	cmd     *exec.Cmd
	conn    *ipc.Conn

	// Info is the InitReply the decoder sent during the handshake,
	// cached so callers can read image metadata without a round trip.
	Info    *ipc.InitReply
	InfoFDs []int

	cancelWrite *os.File

	mu         sync.Mutex
	callMu     sync.Mutex
	graceKill  time.Duration
	terminated bool
}

// Spawn starts a decoder binary inside the given sandbox backend and
// performs the Init handshake.
func Spawn(ctx context.Context, backend sandbox.Backend, binary string, mime string, input *os.File, graceKill time.Duration) (*DecoderProcess, error) {
	hostSock, childSock, err := ipc.Socketpair()
	if err != nil {
		return nil, err
	}

	cancelRead, cancelWrite, err := os.Pipe()
	if err != nil {
		hostSock.Close()
		childSock.Close()
		return nil, errs.Wrap(errs.IO, "create cancellation pipe", err)
	}

	cmd, err := backend.Exec(ctx, binary, nil)
	if err != nil {
		hostSock.Close()
		childSock.Close()
		cancelRead.Close()
		cancelWrite.Close()
		return nil, errs.Wrap(errs.SandboxSpawnFailed, "prepare decoder command", err)
	}
	// The backend may have already populated ExtraFiles (the bwrap
	// backend donates its compiled seccomp program this way), so the fd
	// numbers these three will occupy in the child depend on how many
	// slots are already taken, not a fixed 3/4/5. The decoder binary
	// can't learn its IPC socket fd from Init (that message arrives
	// *over* that socket), so it's passed as an env var instead; the
	// input and cancel fd numbers ride inside Init itself once the
	// socket is up.
	baseFD := 3 + len(cmd.ExtraFiles)
	sockFD, inputFD, cancelFD := baseFD, baseFD+1, baseFD+2
	cmd.ExtraFiles = append(cmd.ExtraFiles, childSock, input, cancelRead)
	cmd.Env = append(cmd.Env, fmt.Sprintf("GLYCIN_IPC_FD=%d", sockFD))

	if err := cmd.Start(); err != nil {
		hostSock.Close()
		childSock.Close()
		cancelRead.Close()
		cancelWrite.Close()
		return nil, errs.Wrap(errs.SandboxSpawnFailed, "start decoder process", err)
	}
	childSock.Close()
	input.Close()
	cancelRead.Close()

	if err := backend.PostStart(cmd.Process.Pid); err != nil {
		logger.Warn("orchestrator: post-start limits failed", "pid", cmd.Process.Pid, "error", err)
	}

	conn, err := ipc.FromFile(hostSock)
	if err != nil {
		cmd.Process.Kill()
		return nil, err
	}

	dp := &DecoderProcess{
		ID:          uuid.NewString(),
		backend:     backend,
		cmd:         cmd,
		conn:        conn,
		graceKill:   graceKill,
		cancelWrite: cancelWrite,
	}

	// The input file and cancellation pipe are inherited directly via
	// ExtraFiles rather than re-sent over SCM_RIGHTS — they're already
	// open in the child by the time Init arrives.
	init := ipc.Init{
		ProtocolVersion: ipc.ProtocolVersion,
		MIME:            mime,
		InputFDIndex:    inputFD,
		CancelFDIndex:   cancelFD,
	}
	if err := conn.Send(ipc.MsgInit, init); err != nil {
		dp.Kill()
		return nil, err
	}

	t, body, fds, err := conn.RecvRaw()
	if err != nil {
		dp.Kill()
		return nil, err
	}
	if t == ipc.MsgError {
		closeAll(fds)
		dp.Kill()
		return nil, decoderError(body)
	}
	if t != ipc.MsgInitReply {
		closeAll(fds)
		dp.Kill()
		return nil, errs.New(errs.Protocol, "expected InitReply").WithSub(errs.SubMalformed)
	}
	var reply ipc.InitReply
	if err := ipc.Decode(body, &reply); err != nil {
		closeAll(fds)
		dp.Kill()
		return nil, err
	}
	if reply.ProtocolVersion != ipc.ProtocolVersion {
		closeAll(fds)
		dp.Kill()
		return nil, errs.New(errs.Protocol, "decoder speaks a different protocol version").WithSub(errs.SubVersionMismatch)
	}

	dp.Info = &reply
	dp.InfoFDs = fds
	return dp, nil
}

// RequestFrame asks the decoder for a specific (or next) frame. Only one
// RequestFrame/Edit call may be outstanding at a time.
func (d *DecoderProcess) RequestFrame(ctx context.Context, index int) (*ipc.FrameReply, []int, error) {
	d.callMu.Lock()
	defer d.callMu.Unlock()

	if err := d.conn.Send(ipc.MsgFrame, ipc.Frame{Index: index}); err != nil {
		return nil, nil, err
	}
	t, body, fds, err := d.conn.RecvRaw()
	if err != nil {
		return nil, nil, err
	}
	if t == ipc.MsgError {
		closeAll(fds)
		return nil, nil, decoderError(body)
	}
	if t != ipc.MsgFrameReply {
		closeAll(fds)
		return nil, nil, errs.New(errs.Protocol, "expected FrameReply").WithSub(errs.SubMalformed)
	}
	var reply ipc.FrameReply
	if err := ipc.Decode(body, &reply); err != nil {
		closeAll(fds)
		return nil, nil, err
	}
	return &reply, fds, nil
}

// RequestEdit asks the decoder to apply a sequence of transforms and
// return the resulting frame. Only one RequestFrame/RequestEdit call may
// be outstanding at a time.
func (d *DecoderProcess) RequestEdit(ctx context.Context, ops []ipc.EditOp) (*ipc.EditReply, []int, error) {
	d.callMu.Lock()
	defer d.callMu.Unlock()

	if err := d.conn.Send(ipc.MsgEdit, ipc.Edit{Ops: ops}); err != nil {
		return nil, nil, err
	}
	t, body, fds, err := d.conn.RecvRaw()
	if err != nil {
		return nil, nil, err
	}
	if t == ipc.MsgError {
		closeAll(fds)
		return nil, nil, decoderError(body)
	}
	if t != ipc.MsgEditReply {
		closeAll(fds)
		return nil, nil, errs.New(errs.Protocol, "expected EditReply").WithSub(errs.SubMalformed)
	}
	var reply ipc.EditReply
	if err := ipc.Decode(body, &reply); err != nil {
		closeAll(fds)
		return nil, nil, err
	}
	return &reply, fds, nil
}

// decoderError decodes a MsgError body into the host-side error,
// preserving the decoder's reported Kind/Sub/Message/SourceLocation
// instead of substituting a generic message.
func decoderError(body []byte) error {
	var wireErr ipc.Error
	if err := ipc.Decode(body, &wireErr); err != nil {
		return errs.New(errs.DecoderReported, "decoder reported an unparseable error")
	}
	return errs.FromDecoderReport(errs.Kind(wireErr.Kind), wireErr.Sub, wireErr.Message, wireErr.SourceLocation)
}

// Cancel requests the decoder abandon its in-flight Frame/Edit call by
// writing a single byte to the cancellation pipe — the decoder-side
// watchCancel goroutine unblocks and cancels its request context. It is
// safe to call more than once or after Close.
func (d *DecoderProcess) Cancel() {
	if d.cancelWrite == nil {
		return
	}
	d.cancelWrite.Write([]byte{0})
}

// Close asks the decoder to terminate cleanly, escalating to SIGTERM
// then SIGKILL after graceKill if it doesn't exit on its own.
func (d *DecoderProcess) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminated {
		return nil
	}
	d.terminated = true

	_ = d.conn.Send(ipc.MsgTerminate, ipc.Terminate{})
	d.conn.Close()
	if d.cancelWrite != nil {
		d.cancelWrite.Close()
	}

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(d.graceKill):
		logger.Warn("orchestrator: decoder did not exit after Terminate, sending SIGTERM", "id", d.ID)
		d.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(d.graceKill):
			logger.Warn("orchestrator: decoder ignored SIGTERM, sending SIGKILL", "id", d.ID)
			d.cmd.Process.Kill()
			<-done
		}
	}
	return d.backend.Destroy()
}

// Kill immediately terminates the decoder without the graceful sequence,
// used when construction itself fails partway through.
func (d *DecoderProcess) Kill() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminated {
		return
	}
	d.terminated = true
	if d.conn != nil {
		d.conn.Close()
	}
	if d.cancelWrite != nil {
		d.cancelWrite.Close()
	}
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
		d.cmd.Wait()
	}
	d.backend.Destroy()
}

func closeAll(fds []int) {
	for _, fd := range fds {
		os.NewFile(uintptr(fd), "").Close()
	}
}
