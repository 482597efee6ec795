package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/andresmejia3/docmask/internal/types"
	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig selects the trained data used for recognition.
type TesseractConfig struct {
	Language     string // e.g. "eng"
	TessdataPath string // empty uses the system default
}

// Tesseract wraps a single gosseract client. A client holds native state, so
// one Tesseract must only be used by one goroutine at a time.
type Tesseract struct {
	client *gosseract.Client
	cfg    TesseractConfig
}

// NewTesseract creates a client and applies cfg.
func NewTesseract(cfg TesseractConfig) (*Tesseract, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	c := gosseract.NewClient()
	if cfg.TessdataPath != "" {
		if err := c.SetTessdataPrefix(cfg.TessdataPath); err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: set tessdata path: %v", types.ErrOCRUnavailable, err)
		}
	}
	if err := c.SetLanguage(cfg.Language); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: set language: %v", types.ErrOCRUnavailable, err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: set page segmentation: %v", types.ErrOCRUnavailable, err)
	}
	return &Tesseract{client: c, cfg: cfg}, nil
}

// TesseractFactory returns a Factory producing engines configured with cfg.
func TesseractFactory(cfg TesseractConfig) Factory {
	return func() (Engine, error) { return NewTesseract(cfg) }
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs word-level recognition. Any failure of the native engine is
// reported as ErrOCRUnavailable.
func (t *Tesseract) Recognize(ctx context.Context, img *image.RGBA) ([]types.Token, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", types.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode page: %v", types.ErrOCRUnavailable, err)
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", types.ErrOCRUnavailable, err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("%w: recognize words: %v", types.ErrOCRUnavailable, err)
	}
	return wordsToTokens(boxes, img.Bounds().Min), nil
}

// wordsToTokens converts word boxes to tokens. PNG encoding rebases the page
// at the origin, so boxes are shifted back by off.
func wordsToTokens(boxes []gosseract.BoundingBox, off image.Point) []types.Token {
	out := make([]types.Token, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, types.Token{
			Text:       b.Word,
			Box:        b.Box.Add(off),
			Index:      len(out),
			Confidence: b.Confidence / 100.0,
		})
	}
	return out
}

func (t *Tesseract) Close() error {
	return t.client.Close()
}
