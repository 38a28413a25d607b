package glycin

import (
	"context"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/glycin-go/internal/errs"
	"github.com/ehrlich-b/glycin-go/internal/ipc"
	"github.com/ehrlich-b/glycin-go/internal/memfd"
	"github.com/ehrlich-b/glycin-go/internal/orchestrator"
)

// ImageInfo describes the properties of the loaded image, probed once
// during Init before any frame is decoded.
type ImageInfo struct {
	Width        int
	Height       int
	FrameCount   int
	MemoryFormat string
}

// EditOp names an in-sandbox transform to apply via Image.Edit, mirroring
// the wire and decoder-side shapes.
type EditOp struct {
	Op   string
	Args map[string]string
}

// Image is a handle on one sandboxed decoder process, alive until Close.
// Per this system's one-decoder-per-request model, an Image can't be
// reused for a second source file — build a new Loader for that.
type Image struct {
	dp      *orchestrator.DecoderProcess
	release func()
	closed  bool
}

// Info returns the dimensions and frame count probed at Load time.
func (img *Image) Info() ImageInfo {
	return ImageInfo{
		Width:        img.dp.Info.Width,
		Height:       img.dp.Info.Height,
		FrameCount:   img.dp.Info.FrameCount,
		MemoryFormat: img.dp.Info.MemoryFormat,
	}
}

// ICCProfile returns the image's embedded color profile, if any.
func (img *Image) ICCProfile() ([]byte, error) {
	if !img.dp.Info.HasICCProfile {
		return nil, nil
	}
	if img.dp.Info.ICCFDIndex < 0 {
		return img.dp.Info.ICCInline, nil
	}
	if img.dp.Info.ICCFDIndex >= len(img.dp.InfoFDs) {
		return nil, errs.New(errs.Protocol, "init reply referenced a missing icc fd")
	}
	fd := img.dp.InfoFDs[img.dp.Info.ICCFDIndex]
	f := os.NewFile(uintptr(fd), "glycin-icc")
	defer f.Close()
	if err := memfd.VerifySeals(f); err != nil {
		return nil, errs.Wrap(errs.Protocol, "icc memfd", err)
	}
	st, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.IO, "stat icc memfd", err)
	}
	data := make([]byte, st.Size())
	if _, err := f.ReadAt(data, 0); err != nil {
		return nil, errs.Wrap(errs.IO, "read icc memfd", err)
	}
	return data, nil
}

// NextFrame decodes the frame following the last one returned, or the
// first frame if none has been requested yet.
func (img *Image) NextFrame(ctx context.Context) (*Frame, error) {
	reply, fds, err := img.dp.RequestFrame(ctx, -1)
	if err != nil {
		return nil, err
	}
	return newFrame(reply.Width, reply.Height, reply.Stride, reply.MemoryFormat, reply.DelayMS, reply.BufferSize, reply.BufferFDIndex, fds)
}

// SpecificFrame decodes the frame at index, for formats with more than
// one frame (animations, multi-page documents).
func (img *Image) SpecificFrame(ctx context.Context, index int) (*Frame, error) {
	reply, fds, err := img.dp.RequestFrame(ctx, index)
	if err != nil {
		return nil, err
	}
	return newFrame(reply.Width, reply.Height, reply.Stride, reply.MemoryFormat, reply.DelayMS, reply.BufferSize, reply.BufferFDIndex, fds)
}

// Edit applies ops in sequence and returns the resulting frame. The
// decoder performs every op inside the same sandbox the image was
// decoded in.
func (img *Image) Edit(ctx context.Context, ops []EditOp) (*Frame, error) {
	wireOps := make([]ipc.EditOp, len(ops))
	for i, o := range ops {
		wireOps[i] = ipc.EditOp{Op: o.Op, Args: o.Args}
	}
	reply, fds, err := img.dp.RequestEdit(ctx, wireOps)
	if err != nil {
		return nil, err
	}
	return newFrame(reply.Width, reply.Height, reply.Stride, reply.MemoryFormat, 0, reply.BufferSize, reply.BufferFDIndex, fds)
}

// Close terminates the decoder process and releases the memory this
// image reserved against the process-wide budget.
func (img *Image) Close() error {
	if img.closed {
		return nil
	}
	img.closed = true
	err := img.dp.Close()
	img.release()
	return err
}

// Frame is one decoded image frame, backed by a read-only mapping of a
// sealed memfd the decoder handed back over the IPC connection.
type Frame struct {
	Width        int
	Height       int
	Stride       int
	MemoryFormat string
	DelayMS      int

	data []byte
}

func newFrame(width, height, stride int, memoryFormat string, delayMS int, size int64, bufferFDIndex int, fds []int) (*Frame, error) {
	if bufferFDIndex < 0 || bufferFDIndex >= len(fds) {
		return nil, errs.New(errs.Protocol, "reply referenced a missing buffer fd")
	}
	fd := fds[bufferFDIndex]
	f := os.NewFile(uintptr(fd), "glycin-frame")
	defer f.Close()

	if err := memfd.VerifySeals(f); err != nil {
		return nil, errs.Wrap(errs.Protocol, "frame buffer memfd", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "mmap frame buffer", err)
	}
	return &Frame{
		Width:        width,
		Height:       height,
		Stride:       stride,
		MemoryFormat: memoryFormat,
		DelayMS:      delayMS,
		data:         data,
	}, nil
}

// Buffer returns the frame's raw pixel bytes, valid until Release.
func (fr *Frame) Buffer() []byte {
	return fr.data
}

// Release unmaps the frame's pixel buffer. Safe to call more than once.
func (fr *Frame) Release() error {
	if fr.data == nil {
		return nil
	}
	err := unix.Munmap(fr.data)
	fr.data = nil
	return err
}
