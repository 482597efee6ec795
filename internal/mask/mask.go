// Package mask applies destructive visual redactions to rectangular regions
// of an RGBA buffer. It knows nothing about tokens or text classification.
package mask

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// ErrOutOfBounds is returned when a region is not fully inside the image.
var ErrOutOfBounds = errors.New("region outside image bounds")

// blurBufferPool recycles scratch copies of the region being blurred.
var blurBufferPool = sync.Pool{
	New: func() interface{} { return make([]uint8, 0, 256*1024) },
}

// Apply overwrites r in img using the given style. The region must lie inside
// img's bounds; it is never clipped. An empty region is a no-op.
func Apply(img *image.RGBA, r image.Rectangle, style Style) error {
	return ApplyFrom(img, img, r, style)
}

// ApplyFrom is Apply with separate buffers: Blur and Pixelate read the
// region from src and write the result into dst, so overlapping regions
// painted into the same dst never compound. r must lie inside both.
func ApplyFrom(dst, src *image.RGBA, r image.Rectangle, style Style) error {
	if !style.Valid() {
		return fmt.Errorf("unknown mask style %d", int(style))
	}
	if r.Empty() {
		return nil
	}
	if !r.In(dst.Bounds()) {
		return fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, r, dst.Bounds())
	}
	if !r.In(src.Bounds()) {
		return fmt.Errorf("%w: %v not in source %v", ErrOutOfBounds, r, src.Bounds())
	}

	switch style {
	case BlackBox:
		fill(dst, r, 0, 0, 0)
	case Blur:
		boxBlur(dst, src, r)
	case Pixelate:
		pixelate(dst, src, r)
	case TextReplace:
		fill(dst, r, 255, 255, 255)
		drawPlaceholder(dst, r)
	}
	return nil
}

// fill paints r with an opaque solid color using direct slice access.
func fill(img *image.RGBA, r image.Rectangle, cr, cg, cb uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		rowStart := img.PixOffset(r.Min.X, y)
		for x := 0; x < r.Dx(); x++ {
			off := rowStart + x*4
			img.Pix[off] = cr
			img.Pix[off+1] = cg
			img.Pix[off+2] = cb
			img.Pix[off+3] = 255
		}
	}
}

// boxBlur writes the 3x3 box blur of src's region r into dst. Pixels whose
// kernel would read outside r (the border row/column) keep src's value.
func boxBlur(dst, src *image.RGBA, r image.Rectangle) {
	w, h := r.Dx(), r.Dy()

	neededSize := w * h * 4
	bufPtr := blurBufferPool.Get().([]uint8)
	if cap(bufPtr) < neededSize {
		bufPtr = make([]uint8, neededSize)
	}
	snap := bufPtr[:neededSize]
	defer blurBufferPool.Put(bufPtr)

	// Snapshot the region so every output pixel reads unblurred neighbours,
	// and start dst from the source pixels so the border keeps them.
	for y := 0; y < h; y++ {
		off := src.PixOffset(r.Min.X, r.Min.Y+y)
		copy(snap[y*w*4:(y+1)*w*4], src.Pix[off:off+w*4])
		copy(dst.Pix[dst.PixOffset(r.Min.X, r.Min.Y+y):], snap[y*w*4:(y+1)*w*4])
	}
	if w < 3 || h < 3 {
		return
	}

	for y := 1; y < h-1; y++ {
		dstRow := dst.PixOffset(r.Min.X, r.Min.Y+y)
		for x := 1; x < w-1; x++ {
			var sum [4]uint32
			for ky := -1; ky <= 1; ky++ {
				rowOff := (y + ky) * w * 4
				for kx := -1; kx <= 1; kx++ {
					off := rowOff + (x+kx)*4
					sum[0] += uint32(snap[off])
					sum[1] += uint32(snap[off+1])
					sum[2] += uint32(snap[off+2])
					sum[3] += uint32(snap[off+3])
				}
			}
			o := dstRow + x*4
			for c := 0; c < 4; c++ {
				dst.Pix[o+c] = uint8((sum[c] + 4) / 9)
			}
		}
	}
}

// pixelate shrinks src's region r to a tenth of its size with
// nearest-neighbour sampling and scales it back up into dst, leaving
// visible blocks.
func pixelate(dst, src *image.RGBA, r image.Rectangle) {
	sw := max(1, r.Dx()/10)
	sh := max(1, r.Dy()/10)
	small := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.NearestNeighbor.Scale(small, small.Bounds(), src, r, draw.Src, nil)
	draw.NearestNeighbor.Scale(dst, r, small, small.Bounds(), draw.Src, nil)
}
