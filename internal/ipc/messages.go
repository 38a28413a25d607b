// Package ipc implements the length-framed, FD-carrying protocol between
// the host and a decoder process: a gob-encoded message body prefixed by
// a type tag and length, with large blobs (pixel buffers, ICC profiles)
// riding alongside as sealed memfd handles in the socket's out-of-band
// SCM_RIGHTS data instead of being inlined in the body.
package ipc

// ProtocolVersion is bumped whenever the message catalog changes in a
// way that isn't backward compatible. Init negotiates this before any
// image data crosses the boundary.
const ProtocolVersion = 1

// MsgType tags the message catalog spec.md §4.4 defines.
type MsgType uint8

const (
	MsgInit MsgType = iota + 1
	MsgInitReply
	MsgFrame
	MsgFrameReply
	MsgEdit
	MsgEditReply
	MsgTerminate
	MsgError
)

func (t MsgType) String() string {
	switch t {
	case MsgInit:
		return "Init"
	case MsgInitReply:
		return "InitReply"
	case MsgFrame:
		return "Frame"
	case MsgFrameReply:
		return "FrameReply"
	case MsgEdit:
		return "Edit"
	case MsgEditReply:
		return "EditReply"
	case MsgTerminate:
		return "Terminate"
	case MsgError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Init is the first message the host sends: which MIME type to decode
// and the protocol version it speaks.
type Init struct {
	ProtocolVersion int
	MIME            string
	// InputFDIndex is the raw fd number of the input file, inherited
	// directly via the sandbox backend's ExtraFiles rather than sent
	// over SCM_RIGHTS — it's already open in the decoder process by the
	// time Init is read.
	InputFDIndex int
	// CancelFDIndex is the raw fd number of the read end of a
	// cancellation pipe, inherited the same way as InputFDIndex. The
	// host closes or writes to its write end to request cancellation;
	// the decoder blocks reading this end on a background goroutine and
	// cancels its request context the moment it unblocks. Zero means no
	// cancellation pipe was provided.
	CancelFDIndex int
}

// InitReply answers Init with the probed image dimensions or an error.
type InitReply struct {
	ProtocolVersion int
	Width           int
	Height          int
	FrameCount      int // 1 for static images, >1 for animations
	MemoryFormat    string
	HasICCProfile   bool
	// ICCFDIndex, when >= 0, names the out-of-band fd index of a sealed
	// memfd holding the ICC profile bytes (blobs over the inline
	// threshold never travel in the message body).
	ICCFDIndex int
	ICCInline  []byte
}

// Frame requests a specific frame (or "next") be decoded.
type Frame struct {
	Index int // -1 means "next frame after the last one returned"
}

// FrameReply carries a decoded frame's pixel buffer handle.
type FrameReply struct {
	Width        int
	Height       int
	Stride       int
	MemoryFormat string
	DelayMS      int
	BufferFDIndex int // out-of-band fd index of the sealed pixel memfd
	BufferSize    int64
}

// EditOp names an in-sandbox transform the decoder should apply before
// returning a frame, mirroring decoderrt.EditOp on the wire.
type EditOp struct {
	Op   string
	Args map[string]string
}

// Edit requests a sequence of transforms be applied, replied to with an
// EditReply carrying the resulting frame the same way FrameReply does.
type Edit struct {
	Ops []EditOp
}

// EditReply carries the transformed frame's pixel buffer handle, same
// shape as FrameReply.
type EditReply struct {
	Width         int
	Height        int
	Stride        int
	MemoryFormat  string
	BufferFDIndex int
	BufferSize    int64
}

// Terminate asks the decoder to exit cleanly.
type Terminate struct{}

// Error carries a structured failure using the same Kind taxonomy as
// internal/errs, decoded by the host into an *errs.Error. SourceLocation
// and Backtrace mirror spec.md §4.4's message catalog entry for Error —
// the decoder runtime in this repository never fills in Backtrace.
type Error struct {
	Kind           int
	Sub            string
	Message        string
	SourceLocation string
	Backtrace      string
}
