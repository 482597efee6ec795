// Package imageio converts between encoded document images and the owned
// *image.RGBA buffers the redactor paints on.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/docmask/internal/types"
	_ "golang.org/x/image/bmp"
)

// Format names an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// JPEGQuality is used for JPEG output.
const JPEGQuality = 92

// ParseFormat accepts png, jpeg and jpg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	}
	return "", fmt.Errorf("%w: unsupported output format %q", types.ErrInvalidInput, s)
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return ".jpg"
	}
	return ".png"
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

var contentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/bmp":  true,
}

// AcceptedContentType reports whether uploads of MIME type ct are decodable.
// Parameters such as "; charset=" are ignored.
func AcceptedContentType(ct string) bool {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return contentTypes[strings.ToLower(strings.TrimSpace(ct))]
}

// Decode reads an image and returns an RGBA copy the caller owns, along with
// the detected format name.
func Decode(r io.Reader) (*image.RGBA, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %v", types.ErrInvalidInput, err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: image has no pixels", types.ErrInvalidInput)
	}
	return ToRGBA(img), format, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (*image.RGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image data", types.ErrInvalidInput)
	}
	return Decode(bytes.NewReader(data))
}

// DecodeFile opens and decodes path.
func DecodeFile(path string) (*image.RGBA, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return Decode(f)
}

// ToRGBA returns img as a freshly allocated *image.RGBA with the same bounds.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

// Encode writes img in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	}
	return fmt.Errorf("%w: unsupported output format %q", types.ErrInvalidInput, string(f))
}

// EncodeBytes encodes img into a new buffer.
func EncodeBytes(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes img to path, replacing any existing file. The image is
// written to a temp file first so a failed encode never leaves a partial file.
func WriteFile(path string, img image.Image, f Format) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".docmask-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Encode(tmp, img, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// OutputPath derives "<dir>/<name>.redacted<ext>" for input. An empty dir
// writes next to the input.
func OutputPath(input, dir string, f Format) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name+".redacted"+f.Ext())
}
