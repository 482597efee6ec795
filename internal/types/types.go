package types

import (
	"image"
	"strings"
)

// Token is a single OCR-recognized word in reading order.
type Token struct {
	Text       string
	Box        image.Rectangle
	Index      int     // Ordinal position in the sequence
	Confidence float64 // 0..1, zero when the provider does not report it
}

// Blank reports whether the token carries no text worth classifying.
func (t Token) Blank() bool {
	return strings.TrimSpace(t.Text) == ""
}

// NewTokens assigns contiguous ordinals to a sequence of words and boxes.
func NewTokens(words []string, boxes []image.Rectangle) []Token {
	out := make([]Token, len(words))
	for i, w := range words {
		out[i] = Token{Text: w, Index: i}
		if i < len(boxes) {
			out[i].Box = boxes[i]
		}
	}
	return out
}

// DocumentTask represents a single image sent to an engine worker for processing
type DocumentTask struct {
	Index int
	Path  string
	Data  []byte
}

// TokenFileEntry matches the JSON structure of a pre-computed OCR token file.
type TokenFileEntry struct {
	Text       string  `json:"text"`
	Box        [4]int  `json:"box"` // [x, y, width, height]
	Confidence float64 `json:"confidence,omitempty"`
}

// ProcessResponse is the JSON envelope returned by the HTTP service for both
// successful and failed requests.
type ProcessResponse struct {
	Status    string `json:"status"` // "success" or "error"
	Message   string `json:"message"`
	ImageData string `json:"imageData,omitempty"` // base64 PNG
	Style     string `json:"style,omitempty"`
	Flagged   int    `json:"flagged"`
	Regions   int    `json:"regions"`
	RunID     string `json:"runId,omitempty"`
}
