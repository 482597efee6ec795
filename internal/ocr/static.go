package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/andresmejia3/docmask/internal/types"
)

// Static replays a fixed token sequence for every image. It backs the
// --tokens flag, where OCR ran ahead of time, and keeps tests free of the
// native engine.
type Static struct {
	tokens []types.Token
}

// NewStatic returns an engine yielding tokens. Ordinals are reassigned.
func NewStatic(tokens []types.Token) *Static {
	out := make([]types.Token, len(tokens))
	for i, t := range tokens {
		t.Index = i
		out[i] = t
	}
	return &Static{tokens: out}
}

// StaticFactory shares one immutable token list across workers.
func StaticFactory(tokens []types.Token) Factory {
	s := NewStatic(tokens)
	return func() (Engine, error) { return s, nil }
}

func (s *Static) Name() string { return "static" }

func (s *Static) Recognize(ctx context.Context, img *image.RGBA) ([]types.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]types.Token(nil), s.tokens...), nil
}

func (s *Static) Close() error { return nil }

// ReadTokens decodes a JSON array of {"text", "box": [x, y, w, h]} entries.
func ReadTokens(r io.Reader) ([]types.Token, error) {
	var entries []types.TokenFileEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decode tokens: %v", types.ErrInvalidInput, err)
	}
	out := make([]types.Token, len(entries))
	for i, e := range entries {
		x, y, w, h := e.Box[0], e.Box[1], e.Box[2], e.Box[3]
		if w < 0 || h < 0 {
			return nil, fmt.Errorf("%w: token %d has negative size %dx%d", types.ErrInvalidInput, i, w, h)
		}
		out[i] = types.Token{
			Text:       e.Text,
			Box:        image.Rect(x, y, x+w, y+h),
			Index:      i,
			Confidence: e.Confidence,
		}
	}
	return out, nil
}

// LoadTokenFile reads a token file from disk.
func LoadTokenFile(path string) ([]types.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTokens(f)
}

// WriteTokens encodes tokens in the format ReadTokens accepts.
func WriteTokens(w io.Writer, tokens []types.Token) error {
	entries := make([]types.TokenFileEntry, len(tokens))
	for i, t := range tokens {
		entries[i] = types.TokenFileEntry{
			Text:       t.Text,
			Box:        [4]int{t.Box.Min.X, t.Box.Min.Y, t.Box.Dx(), t.Box.Dy()},
			Confidence: t.Confidence,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
