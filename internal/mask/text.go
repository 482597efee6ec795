package mask

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Placeholder is the literal drawn over regions masked with TextReplace.
const Placeholder = "XXXXXX"

const placeholderInset = 5

var placeholderInk = image.NewUniform(color.RGBA{R: 255, A: 255})

var (
	boldOnce sync.Once
	boldFont *opentype.Font
	boldErr  error

	// faces caches one face per pixel size; opentype faces are not safe for
	// concurrent use, so each entry carries its own lock.
	faces sync.Map // map[int]*lockedFace
)

type lockedFace struct {
	mu   sync.Mutex
	face font.Face
}

func loadBold() (*opentype.Font, error) {
	boldOnce.Do(func() {
		boldFont, boldErr = opentype.Parse(gobold.TTF)
	})
	return boldFont, boldErr
}

func faceFor(size int) (*lockedFace, error) {
	if f, ok := faces.Load(size); ok {
		return f.(*lockedFace), nil
	}
	fnt, err := loadBold()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	actual, _ := faces.LoadOrStore(size, &lockedFace{face: face})
	return actual.(*lockedFace), nil
}

// drawPlaceholder writes Placeholder in red bold at half the region height,
// inset from the left edge and centred vertically on its cap height. Drawing
// is clipped to r.
func drawPlaceholder(img *image.RGBA, r image.Rectangle) {
	size := r.Dy() / 2
	if size < 1 {
		return
	}
	lf, err := faceFor(size)
	if err != nil {
		// The embedded font always parses; a failure leaves the white fill.
		return
	}
	lf.mu.Lock()
	defer lf.mu.Unlock()

	capHeight := lf.face.Metrics().CapHeight.Round()
	if capHeight <= 0 {
		capHeight = lf.face.Metrics().Ascent.Round()
	}
	baseline := r.Min.Y + (r.Dy()+capHeight)/2

	d := &font.Drawer{
		Dst:  img.SubImage(r).(*image.RGBA),
		Src:  placeholderInk,
		Face: lf.face,
		Dot:  fixed.P(r.Min.X+placeholderInset, baseline),
	}
	d.DrawString(Placeholder)
}
