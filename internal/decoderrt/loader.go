// Package decoderrt is the in-sandbox decoder runtime: it owns the IPC
// connection once the seccomp filter is installed, dispatches to a
// registered Loader by MIME type, and hands every frame's pixels (and
// any ICC profile over the inline threshold) back through a sealed memfd.
package decoderrt

import (
	"context"
	"os"
)

// ImageInfo mirrors spec.md's ImageInfo: the static metadata a loader
// can report before any frame is decoded.
type ImageInfo struct {
	Width         int
	Height        int
	FrameCount    int
	MemoryFormat  string
	ICCProfile    []byte
}

// FrameSelector names which frame a Frame request wants. Index -1 means
// "the next frame after the last one returned", matching animated-image
// sequential access; a non-negative index means "seek to this frame".
type FrameSelector struct {
	Index int
}

// RawFrame is a decoded frame still owned by the loader — the runtime
// copies it into a sealed memfd before replying.
type RawFrame struct {
	Width        int
	Height       int
	Stride       int
	MemoryFormat string
	DelayMS      int
	Pixels       []byte
}

// EditOp names an in-sandbox transform (e.g. rotate, crop) applied
// before the frame is returned. Reserved for loaders that support it;
// the reference loaders in this repo don't.
type EditOp struct {
	Op   string
	Args map[string]string
}

// Loader is the narrow trait every codec-specific decoder implements.
// Probe/Frame/Edit must all respect ctx cancellation promptly — the host
// polls a cancellation pipe and expects the sandboxed process to notice
// within one chunk boundary.
type Loader interface {
	Probe(ctx context.Context, input *os.File, mime string) (ImageInfo, error)
	Frame(ctx context.Context, sel FrameSelector, budget uint64) (RawFrame, error)
	Edit(ctx context.Context, ops []EditOp) (RawFrame, error)
}

// Registry maps a MIME type to the Loader constructor that handles it.
type Registry struct {
	byMime map[string]func() Loader
}

func NewRegistry() *Registry {
	return &Registry{byMime: make(map[string]func() Loader)}
}

func (r *Registry) Register(mime string, ctor func() Loader) {
	r.byMime[mime] = ctor
}

func (r *Registry) New(mime string) (Loader, bool) {
	ctor, ok := r.byMime[mime]
	if !ok {
		return nil, false
	}
	return ctor(), true
}
