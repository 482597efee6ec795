// Package redactor drives a complete redaction pass over one document image:
// classify OCR tokens, mask the flagged boxes, then mask dense dark regions
// found in the original pixels.
package redactor

import (
	"fmt"
	"image"

	"github.com/andresmejia3/docmask/internal/barcode"
	"github.com/andresmejia3/docmask/internal/classify"
	"github.com/andresmejia3/docmask/internal/mask"
	"github.com/andresmejia3/docmask/internal/types"
	"github.com/charmbracelet/log"
)

// Region is one rectangle painted during a pass.
type Region struct {
	Rect   image.Rectangle
	Source string // classification rule, or "dense" for scanner hits
	Token  int    // ordinal of the masked token, -1 for scanner hits
}

// SourceDense marks regions found by the dense-region scanner.
const SourceDense = "dense"

// Report summarizes a redaction pass.
type Report struct {
	Style          mask.Style
	Tokens         int
	Classification *classify.Result
	Regions        []Region
}

// TokenRegions counts regions masked from classified tokens.
func (r *Report) TokenRegions() int {
	n := 0
	for _, reg := range r.Regions {
		if reg.Source != SourceDense {
			n++
		}
	}
	return n
}

// DenseRegions counts regions masked by the scanner.
func (r *Report) DenseRegions() int {
	return len(r.Regions) - r.TokenRegions()
}

// Redactor is safe for concurrent use; every call owns its own buffers.
type Redactor struct {
	classifier *classify.Classifier
	scanner    *barcode.Scanner
	apply      func(dst, src *image.RGBA, r image.Rectangle, style mask.Style) error
	logger     *log.Logger
}

// Option customizes a Redactor.
type Option func(*Redactor)

// WithScanner replaces the default dense-region scanner. Passing nil disables
// the dense pass.
func WithScanner(s *barcode.Scanner) Option {
	return func(r *Redactor) { r.scanner = s }
}

// WithLogger sets the logger used for masking failures and pass summaries.
func WithLogger(l *log.Logger) Option {
	return func(r *Redactor) { r.logger = l }
}

// New returns a Redactor using c for classification.
func New(c *classify.Classifier, opts ...Option) *Redactor {
	r := &Redactor{
		classifier: c,
		scanner:    barcode.New(barcode.DefaultConfig()),
		apply:      mask.ApplyFrom,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Redact returns a masked copy of src. src itself is never modified, so the
// dense scan and every blur or pixelate read the original pixels while
// painting accumulates on the copy. The operation is all-or-nothing: on error no image is returned.
func (r *Redactor) Redact(src *image.RGBA, tokens []types.Token, style mask.Style) (*image.RGBA, *Report, error) {
	if err := validate(src, tokens, style); err != nil {
		return nil, nil, err
	}

	out := image.NewRGBA(src.Bounds())
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		copy(out.Pix[out.PixOffset(src.Rect.Min.X, y):], src.Pix[src.PixOffset(src.Rect.Min.X, y):src.PixOffset(src.Rect.Max.X, y)])
	}

	report := &Report{Style: style, Tokens: len(tokens)}
	report.Classification = r.classifier.Classify(tokens)

	// A token flagged by several rules is painted once.
	for _, i := range report.Classification.Ordinals() {
		reg := Region{Rect: tokens[i].Box, Source: report.Classification.Rule(i), Token: i}
		if err := r.paint(out, src, reg, style); err != nil {
			return nil, nil, err
		}
		report.Regions = append(report.Regions, reg)
	}

	if r.scanner != nil {
		for _, rect := range r.scanner.Scan(src) {
			reg := Region{Rect: rect, Source: SourceDense, Token: -1}
			if err := r.paint(out, src, reg, style); err != nil {
				return nil, nil, err
			}
			report.Regions = append(report.Regions, reg)
		}
	}

	r.logger.Debug("redaction pass complete",
		"style", style,
		"tokens", len(tokens),
		"flagged", report.Classification.Count(),
		"dense", report.DenseRegions(),
	)
	return out, report, nil
}

func (r *Redactor) paint(out, src *image.RGBA, reg Region, style mask.Style) error {
	if err := r.apply(out, src, reg.Rect, style); err != nil {
		r.logger.Error("masking failed", "rect", reg.Rect, "source", reg.Source, "token", reg.Token, "err", err)
		return fmt.Errorf("%w: mask %v (%s): %v", types.ErrMaskingFailure, reg.Rect, reg.Source, err)
	}
	return nil
}

// validate rejects a request before any pixel is touched.
func validate(src *image.RGBA, tokens []types.Token, style mask.Style) error {
	if !style.Valid() {
		return fmt.Errorf("%w: unknown mask style %d", types.ErrInvalidInput, int(style))
	}
	if src == nil || src.Bounds().Empty() {
		return fmt.Errorf("%w: empty image", types.ErrInvalidInput)
	}
	bounds := src.Bounds()
	for i, t := range tokens {
		if t.Index != i {
			return fmt.Errorf("%w: token %d has ordinal %d", types.ErrInvalidInput, i, t.Index)
		}
		if t.Box.Min.X > t.Box.Max.X || t.Box.Min.Y > t.Box.Max.Y {
			return fmt.Errorf("%w: token %d has malformed box %v", types.ErrInvalidInput, i, t.Box)
		}
		if !t.Box.Empty() && !t.Box.In(bounds) {
			return fmt.Errorf("%w: token %d box %v outside image %v", types.ErrInvalidInput, i, t.Box, bounds)
		}
	}
	return nil
}
