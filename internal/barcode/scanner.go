// Package barcode finds dense dark rectangles (barcodes, stamps, signatures
// rendered as solid blocks) that OCR cannot read but that still leak data.
// It does not decode anything; detection is purely geometric.
package barcode

import (
	"image"
)

// Config controls the sliding-window scan.
type Config struct {
	Window    image.Point // Window size in pixels (width, height)
	Step      int         // Stride in both axes
	Threshold int         // Mean RGB brightness below which a pixel counts as dark
	Density   float64     // Fraction of dark pixels a window must exceed
}

// DefaultConfig returns the 200x60 window, 10px stride, brightness 80, 50% density scan.
func DefaultConfig() Config {
	return Config{
		Window:    image.Pt(200, 60),
		Step:      10,
		Threshold: 80,
		Density:   0.5,
	}
}

// Scanner detects dense dark windows.
type Scanner struct {
	cfg Config
}

// New returns a scanner. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Scanner {
	def := DefaultConfig()
	if cfg.Window.X <= 0 || cfg.Window.Y <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Density <= 0 {
		cfg.Density = def.Density
	}
	return &Scanner{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Scan returns the windows whose dark-pixel fraction exceeds the density
// threshold. Windows never extend past the image; the last column and row of
// window origins stop a full window short of the right and bottom edges.
// After a hit the scan jumps down by the window height and abandons the rest
// of that row, so hits never overlap vertically.
func (s *Scanner) Scan(img *image.RGBA) []image.Rectangle {
	b := img.Bounds()
	ww, wh := s.cfg.Window.X, s.cfg.Window.Y
	if b.Dx() <= ww || b.Dy() <= wh {
		return nil
	}

	sat := darkTable(img, s.cfg.Threshold)
	stride := b.Dx() + 1
	total := float64(ww * wh)

	var hits []image.Rectangle
	for y := 0; y < b.Dy()-wh; y += s.cfg.Step {
		for x := 0; x < b.Dx()-ww; x += s.cfg.Step {
			dark := sat[(y+wh)*stride+x+ww] - sat[y*stride+x+ww] - sat[(y+wh)*stride+x] + sat[y*stride+x]
			if float64(dark)/total > s.cfg.Density {
				hits = append(hits, image.Rect(x, y, x+ww, y+wh).Add(b.Min))
				y += wh
				break
			}
		}
	}
	return hits
}

// darkTable builds a summed-area table of dark pixels so any window count is
// four lookups. Entry (x, y) holds the count over [0,x) x [0,y).
func darkTable(img *image.RGBA, threshold int) []int32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w + 1
	sat := make([]int32, stride*(h+1))

	for y := 0; y < h; y++ {
		rowStart := img.PixOffset(b.Min.X, b.Min.Y+y)
		var run int32
		for x := 0; x < w; x++ {
			off := rowStart + x*4
			brightness := (int(img.Pix[off]) + int(img.Pix[off+1]) + int(img.Pix[off+2])) / 3
			if brightness < threshold {
				run++
			}
			sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + run
		}
	}
	return sat
}
