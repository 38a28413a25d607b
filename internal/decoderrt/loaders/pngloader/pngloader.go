// Package pngloader is a reference Loader implementation for image/png,
// standing in for the external codec libraries spec.md treats as
// out-of-scope so this repo's decode path is end-to-end testable on its
// own.
package pngloader

import (
	"context"
	"image"
	"image/png"
	"os"

	"github.com/ehrlich-b/glycin-go/internal/decoderrt"
	"github.com/ehrlich-b/glycin-go/internal/errs"
)

type Loader struct {
	img image.Image
}

func New() decoderrt.Loader {
	return &Loader{}
}

func (l *Loader) Probe(ctx context.Context, input *os.File, mime string) (decoderrt.ImageInfo, error) {
	if _, err := input.Seek(0, 0); err != nil {
		return decoderrt.ImageInfo{}, errs.Wrap(errs.IO, "seek input", err)
	}
	img, err := png.Decode(input)
	if err != nil {
		return decoderrt.ImageInfo{}, errs.Wrap(errs.InvalidImage, "decode png", err)
	}
	l.img = img

	b := img.Bounds()
	return decoderrt.ImageInfo{
		Width:        b.Dx(),
		Height:       b.Dy(),
		FrameCount:   1,
		MemoryFormat: "R8G8B8A8",
	}, nil
}

func (l *Loader) Frame(ctx context.Context, sel decoderrt.FrameSelector, budget uint64) (decoderrt.RawFrame, error) {
	if l.img == nil {
		return decoderrt.RawFrame{}, errs.New(errs.Protocol, "frame requested before probe")
	}
	if sel.Index > 0 {
		return decoderrt.RawFrame{}, errs.New(errs.InvalidImage, "png has a single frame")
	}

	b := l.img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w * 4
	pixels := make([]byte, stride*h)

	for y := 0; y < h; y++ {
		select {
		case <-ctx.Done():
			return decoderrt.RawFrame{}, errs.Wrap(errs.Cancelled, "frame decode cancelled", ctx.Err())
		default:
		}
		for x := 0; x < w; x++ {
			r, g, bl, a := l.img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			off := y*stride + x*4
			pixels[off] = byte(r >> 8)
			pixels[off+1] = byte(g >> 8)
			pixels[off+2] = byte(bl >> 8)
			pixels[off+3] = byte(a >> 8)
		}
	}

	return decoderrt.RawFrame{
		Width:        w,
		Height:       h,
		Stride:       stride,
		MemoryFormat: "R8G8B8A8",
		Pixels:       pixels,
	}, nil
}

func (l *Loader) Edit(ctx context.Context, ops []decoderrt.EditOp) (decoderrt.RawFrame, error) {
	return decoderrt.RawFrame{}, errs.New(errs.Protocol, "pngloader does not support edit operations")
}
