// Package ocr turns document images into ordered word tokens.
package ocr

import (
	"context"
	"image"

	"github.com/andresmejia3/docmask/internal/types"
)

// Engine recognizes the words of one image. Implementations are not required
// to be safe for concurrent use; the worker package hands each engine to one
// goroutine at a time.
type Engine interface {
	Name() string
	// Recognize returns tokens in reading order with contiguous ordinals and
	// boxes in img's coordinate space.
	Recognize(ctx context.Context, img *image.RGBA) ([]types.Token, error)
	Close() error
}

// Factory builds a fresh engine for a worker.
type Factory func() (Engine, error)
