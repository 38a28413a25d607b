// Package gifloader is a reference Loader for image/gif, covering the
// multi-frame / per-frame-delay path spec.md's Scenario S2 exercises.
package gifloader

import (
	"context"
	"image"
	"image/gif"
	"os"

	"github.com/ehrlich-b/glycin-go/internal/decoderrt"
	"github.com/ehrlich-b/glycin-go/internal/errs"
)

// defaultDelayMS is substituted when a GIF frame's delay is encoded as
// zero — real viewers treat a zero delay as "use a sane default" rather
// than "no delay at all", and Scenario S2 expects that coercion.
const defaultDelayMS = 100

type Loader struct {
	g       *gif.GIF
	lastIdx int // last frame index served; -1 before the first Frame call
}

func New() decoderrt.Loader {
	return &Loader{lastIdx: -1}
}

func (l *Loader) Probe(ctx context.Context, input *os.File, mime string) (decoderrt.ImageInfo, error) {
	if _, err := input.Seek(0, 0); err != nil {
		return decoderrt.ImageInfo{}, errs.Wrap(errs.IO, "seek input", err)
	}
	g, err := gif.DecodeAll(input)
	if err != nil {
		return decoderrt.ImageInfo{}, errs.Wrap(errs.InvalidImage, "decode gif", err)
	}
	l.g = g

	return decoderrt.ImageInfo{
		Width:        g.Config.Width,
		Height:       g.Config.Height,
		FrameCount:   len(g.Image),
		MemoryFormat: "R8G8B8A8",
	}, nil
}

func (l *Loader) Frame(ctx context.Context, sel decoderrt.FrameSelector, budget uint64) (decoderrt.RawFrame, error) {
	if l.g == nil {
		return decoderrt.RawFrame{}, errs.New(errs.Protocol, "frame requested before probe")
	}
	idx := sel.Index
	if idx < 0 {
		idx = l.lastIdx + 1
	}
	if idx < 0 || idx >= len(l.g.Image) {
		return decoderrt.RawFrame{}, errs.New(errs.InvalidImage, "frame index out of range")
	}

	select {
	case <-ctx.Done():
		return decoderrt.RawFrame{}, errs.Wrap(errs.Cancelled, "frame decode cancelled", ctx.Err())
	default:
	}

	paletted := l.g.Image[idx]
	b := paletted.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w * 4
	pixels := make([]byte, stride*h)

	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, paletted.At(x, y))
		}
	}
	copy(pixels, rgba.Pix)

	delayMS := l.g.Delay[idx] * 10 // gif.GIF.Delay is in 100ths of a second
	if delayMS == 0 {
		delayMS = defaultDelayMS
	}

	l.lastIdx = idx
	return decoderrt.RawFrame{
		Width:        w,
		Height:       h,
		Stride:       stride,
		MemoryFormat: "R8G8B8A8",
		DelayMS:      delayMS,
		Pixels:       pixels,
	}, nil
}

func (l *Loader) Edit(ctx context.Context, ops []decoderrt.EditOp) (decoderrt.RawFrame, error) {
	return decoderrt.RawFrame{}, errs.New(errs.Protocol, "gifloader does not support edit operations")
}
