package mask

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

// gradient builds an opaque image where every pixel differs from its neighbours.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8((x + y) * 3), A: 255})
		}
	}
	return img
}

func clone(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

// assertOutsideUnchanged fails if any pixel outside r differs between a and b.
func assertOutsideUnchanged(t *testing.T, a, b *image.RGBA, r image.Rectangle) {
	t.Helper()
	bounds := a.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if image.Pt(x, y).In(r) {
				continue
			}
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) outside %v changed: %v -> %v", x, y, r, a.RGBAAt(x, y), b.RGBAAt(x, y))
			}
		}
	}
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in      string
		want    Style
		wantErr bool
	}{
		{"black_box", BlackBox, false},
		{"BLACK_BOX", BlackBox, false},
		{"blackbox", BlackBox, false},
		{"Blur", Blur, false},
		{"PIXELATE", Pixelate, false},
		{"text-replace", TextReplace, false},
		{"Text_Replace", TextReplace, false},
		{"gauss", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseStyle(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStyle(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseStyle(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApply_BlackBox(t *testing.T) {
	orig := gradient(100, 60)
	img := clone(orig)
	r := image.Rect(10, 10, 60, 30) // (10,10,50,20) as x,y,w,h

	if err := Apply(img, r, BlackBox); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	black := color.RGBA{A: 255}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != black {
				t.Fatalf("pixel (%d,%d) = %v, want opaque black", x, y, got)
			}
		}
	}
	assertOutsideUnchanged(t, orig, img, r)
}

func TestApply_Blur(t *testing.T) {
	orig := gradient(40, 40)
	img := clone(orig)
	r := image.Rect(5, 5, 25, 20)

	if err := Apply(img, r, Blur); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	assertOutsideUnchanged(t, orig, img, r)

	// Border pixels of the region keep their values.
	for x := r.Min.X; x < r.Max.X; x++ {
		if img.RGBAAt(x, r.Min.Y) != orig.RGBAAt(x, r.Min.Y) || img.RGBAAt(x, r.Max.Y-1) != orig.RGBAAt(x, r.Max.Y-1) {
			t.Fatalf("edge pixel in column %d was blurred", x)
		}
	}

	// Interior pixels are the rounded mean of their 3x3 neighbourhood.
	x, y := 10, 10
	var sum int
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			sum += int(orig.RGBAAt(x+kx, y+ky).G)
		}
	}
	if got, want := int(img.RGBAAt(x, y).G), (sum+4)/9; got != want {
		t.Errorf("blurred G at (%d,%d) = %d, want %d", x, y, got, want)
	}
}

func TestApply_BlurUniformRegionIsStable(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	fill(img, img.Bounds(), 120, 40, 200)
	before := clone(img)

	if err := Apply(img, image.Rect(2, 2, 18, 18), Blur); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !bytes.Equal(before.Pix, img.Pix) {
		t.Error("blurring a uniform region changed its pixels")
	}
}

func TestApply_Pixelate(t *testing.T) {
	orig := gradient(80, 60)
	img := clone(orig)
	r := image.Rect(10, 10, 50, 40) // 40x30 -> 4x3 tiles of 10x10

	if err := Apply(img, r, Pixelate); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	assertOutsideUnchanged(t, orig, img, r)

	// Every 10x10 tile is a single color.
	for ty := 0; ty < 3; ty++ {
		for tx := 0; tx < 4; tx++ {
			x0, y0 := r.Min.X+tx*10, r.Min.Y+ty*10
			want := img.RGBAAt(x0, y0)
			for y := y0; y < y0+10; y++ {
				for x := x0; x < x0+10; x++ {
					if got := img.RGBAAt(x, y); got != want {
						t.Fatalf("tile (%d,%d) not uniform: (%d,%d)=%v want %v", tx, ty, x, y, got, want)
					}
				}
			}
		}
	}

	// Re-applying does not restore detail and yields the same blocks.
	once := clone(img)
	if err := Apply(img, r, Pixelate); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if !bytes.Equal(once.Pix, img.Pix) {
		t.Error("pixelate is not idempotent")
	}
}

func TestApply_PixelateTinyRegion(t *testing.T) {
	img := gradient(10, 10)
	r := image.Rect(2, 2, 7, 6)
	if err := Apply(img, r, Pixelate); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// 5x4 collapses to a single 1x1 sample.
	want := img.RGBAAt(r.Min.X, r.Min.Y)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, img.RGBAAt(x, y), want)
			}
		}
	}
}

func TestApply_TextReplace(t *testing.T) {
	orig := gradient(260, 80)
	img := clone(orig)
	r := image.Rect(20, 20, 220, 60)

	if err := Apply(img, r, TextReplace); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	assertOutsideUnchanged(t, orig, img, r)

	inked := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			// Red composited over white keeps R at full and G == B.
			if c.R != 255 || c.G != c.B || c.A != 255 {
				t.Fatalf("pixel (%d,%d) = %v is neither white nor red ink", x, y, c)
			}
			if c.G < 128 {
				inked++
			}
		}
	}
	if inked == 0 {
		t.Error("no placeholder text was drawn")
	}

	// Nothing is drawn left of the inset.
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Min.X+placeholderInset; x++ {
			if c := img.RGBAAt(x, y); c != (color.RGBA{255, 255, 255, 255}) {
				t.Fatalf("pixel (%d,%d) inside inset = %v, want white", x, y, c)
			}
		}
	}
}

func TestApply_TextReplaceFlatRegion(t *testing.T) {
	img := gradient(30, 30)
	r := image.Rect(0, 0, 30, 1)
	if err := Apply(img, r, TextReplace); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	for x := 0; x < 30; x++ {
		if c := img.RGBAAt(x, 0); c != (color.RGBA{255, 255, 255, 255}) {
			t.Fatalf("pixel (%d,0) = %v, want white", x, c)
		}
	}
}

func TestApply_OutOfBounds(t *testing.T) {
	img := gradient(50, 50)
	before := clone(img)

	for _, style := range Styles {
		err := Apply(img, image.Rect(40, 40, 60, 60), style)
		if !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("%v: expected ErrOutOfBounds, got %v", style, err)
		}
	}
	if !bytes.Equal(before.Pix, img.Pix) {
		t.Error("out-of-bounds apply mutated the image")
	}
}

func TestApply_EmptyRegion(t *testing.T) {
	img := gradient(20, 20)
	before := clone(img)
	if err := Apply(img, image.Rect(5, 5, 5, 10), BlackBox); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !bytes.Equal(before.Pix, img.Pix) {
		t.Error("empty region mutated the image")
	}
}

func TestApply_UnknownStyle(t *testing.T) {
	img := gradient(20, 20)
	if err := Apply(img, image.Rect(0, 0, 5, 5), Style(42)); err == nil {
		t.Fatal("expected error for unknown style")
	}
}

func TestApply_SubImageOrigin(t *testing.T) {
	// Buffers whose bounds do not start at the origin still mask in place.
	parent := gradient(60, 60)
	sub := parent.SubImage(image.Rect(20, 20, 60, 60)).(*image.RGBA)
	r := image.Rect(25, 25, 35, 30)

	if err := Apply(sub, r, BlackBox); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := parent.RGBAAt(25, 25); got != (color.RGBA{A: 255}) {
		t.Errorf("parent pixel (25,25) = %v, want black", got)
	}
	if got := parent.RGBAAt(24, 25); got == (color.RGBA{A: 255}) {
		t.Error("pixel left of region was painted")
	}
}

func TestApplyFrom_ReadsSourceNotPaintedPixels(t *testing.T) {
	for _, style := range []Style{Blur, Pixelate} {
		t.Run(style.String(), func(t *testing.T) {
			src := gradient(60, 60)
			r := image.Rect(10, 10, 50, 40)

			// An earlier, overlapping region already painted into dst.
			dst := clone(src)
			fill(dst, image.Rect(0, 0, 30, 30), 0, 0, 0)
			painted := clone(dst)

			if err := ApplyFrom(dst, src, r, style); err != nil {
				t.Fatalf("ApplyFrom() error = %v", err)
			}

			want := clone(src)
			if err := Apply(want, r, style); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			for y := r.Min.Y; y < r.Max.Y; y++ {
				for x := r.Min.X; x < r.Max.X; x++ {
					if got := dst.RGBAAt(x, y); got != want.RGBAAt(x, y) {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want.RGBAAt(x, y))
					}
				}
			}
			assertOutsideUnchanged(t, painted, dst, r)
		})
	}
}

func TestApplyFrom_SourceTooSmall(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 50, 50))
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	err := ApplyFrom(dst, src, image.Rect(10, 10, 30, 30), Blur)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}
