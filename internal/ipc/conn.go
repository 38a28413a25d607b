package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/glycin-go/internal/errs"
)

// Conn wraps a socketpair-derived Unix connection with the framed
// message format: a 4-byte big-endian body length, a 1-byte type tag,
// then the gob-encoded body. Any file descriptors riding along travel as
// SCM_RIGHTS out-of-band data on the same write/read.
type Conn struct {
	uc *net.UnixConn
}

// NewConn wraps an already-connected *net.UnixConn (typically the host
// or decoder end of an inherited socketpair fd).
func NewConn(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc}
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.uc.Close()
}

// Send encodes a message with its type tag and sends it, optionally
// donating fds via SCM_RIGHTS.
func (c *Conn) Send(t MsgType, msg any, fds ...int) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(msg); err != nil {
		return errs.Wrap(errs.Protocol, "encode message", err)
	}

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[:4], uint32(body.Len()))
	header[4] = byte(t)
	payload := append(header, body.Bytes()...)

	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	n, oobn, err := c.uc.WriteMsgUnix(payload, oob, nil)
	if err != nil {
		return errs.Wrap(errs.Protocol, "write message", err)
	}
	if n != len(payload) || oobn != len(oob) {
		return errs.New(errs.Protocol, "short write on ipc message")
	}
	return nil
}

// Recv reads the next message, decoding its body into out (a pointer)
// and returning any fds that rode along via SCM_RIGHTS. Use RecvRaw
// instead when the message type (and therefore which struct to decode
// into) isn't known until the header is read.
func (c *Conn) Recv(out any) (MsgType, []int, error) {
	t, body, fds, err := c.RecvRaw()
	if err != nil {
		return 0, nil, err
	}
	if out != nil {
		if err := gob.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil {
			return 0, nil, errs.Wrap(errs.Protocol, "decode message body", err)
		}
	}
	return t, fds, nil
}

// RecvRaw reads the next message's header and body without decoding,
// letting a dispatch loop pick the right struct for Decode once it knows
// the message type.
func (c *Conn) RecvRaw() (MsgType, []byte, []int, error) {
	// SCM_RIGHTS data is delivered with the first bytes of the message
	// (a plain read discards it), so the header read carries the control
	// buffer.
	header := make([]byte, 5)
	oob := make([]byte, unix.CmsgSpace(16*4)) // room for a handful of fds
	n, oobn, _, _, err := c.uc.ReadMsgUnix(header, oob)
	if err != nil {
		return 0, nil, nil, errs.Wrap(errs.Protocol, "read message header", err)
	}
	if n != len(header) {
		return 0, nil, nil, errs.New(errs.Protocol, fmt.Sprintf("short header read: got %d want %d", n, len(header)))
	}
	bodyLen := binary.BigEndian.Uint32(header[:4])
	t := MsgType(header[4])

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(c.uc, body); err != nil {
		return 0, nil, nil, errs.Wrap(errs.Protocol, "read message body", err)
	}

	var fds []int
	if oobn > 0 {
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return 0, nil, nil, errs.Wrap(errs.Protocol, "parse control message", err)
		}
		for _, scm := range scms {
			got, err := unix.ParseUnixRights(&scm)
			if err != nil {
				continue
			}
			fds = append(fds, got...)
		}
	}
	return t, body, fds, nil
}

// Decode gob-decodes a raw body (as returned by RecvRaw) into out.
func Decode(body []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil {
		return errs.Wrap(errs.Protocol, "decode message body", err)
	}
	return nil
}

// Socketpair creates a connected pair of Unix domain sockets, one for
// the host and one to be inherited by the decoder child.
func Socketpair() (host *os.File, child *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IO, "socketpair", err)
	}
	return os.NewFile(uintptr(fds[0]), "glycin-ipc-host"), os.NewFile(uintptr(fds[1]), "glycin-ipc-child"), nil
}

// FromFile wraps an inherited socket fd (already a connected stream
// socket) as a Conn, the shape the decoder-side runtime uses on startup.
func FromFile(f *os.File) (*Conn, error) {
	c, err := net.FileConn(f)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "wrap inherited socket", err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return nil, errs.New(errs.Protocol, "inherited fd is not a unix socket")
	}
	return NewConn(uc), nil
}
