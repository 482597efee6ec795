package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/docmask/internal/types"
	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

func TestReadTokens(t *testing.T) {
	body := `[
		{"text": "Invoice", "box": [10, 20, 80, 18]},
		{"text": "#", "box": [95, 20, 10, 18], "confidence": 0.91},
		{"text": "4455667", "box": [110, 20, 70, 18]}
	]`
	toks, err := ReadTokens(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ReadTokens() error = %v", err)
	}
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(toks))
	}
	if toks[0].Box != image.Rect(10, 20, 90, 38) {
		t.Errorf("box = %v, want (10,20)-(90,38)", toks[0].Box)
	}
	for i, tok := range toks {
		if tok.Index != i {
			t.Errorf("token %d has ordinal %d", i, tok.Index)
		}
	}
	if toks[1].Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", toks[1].Confidence)
	}
}

func TestReadTokens_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":      `{"text":`,
		"object":        `{"text": "a"}`,
		"negative size": `[{"text": "a", "box": [0, 0, -4, 10]}]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTokens(strings.NewReader(body))
			if !errors.Is(err, types.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestWriteTokensRoundTrip(t *testing.T) {
	in := []types.Token{
		{Text: "ACME", Box: image.Rect(5, 5, 60, 25), Index: 0},
		{Text: "$12.00", Box: image.Rect(70, 5, 130, 25), Index: 1, Confidence: 0.5},
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "tokens.json")
	var buf bytes.Buffer
	if err := WriteTokens(&buf, in); err != nil {
		t.Fatalf("WriteTokens() error = %v", err)
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := LoadTokenFile(p)
	if err != nil {
		t.Fatalf("LoadTokenFile() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d tokens, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("token %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestLoadTokenFile_Missing(t *testing.T) {
	if _, err := LoadTokenFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic([]types.Token{{Text: "a", Index: 7}, {Text: "b", Index: 3}})
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	got, err := s.Recognize(context.Background(), img)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Errorf("ordinals not reassigned: %+v", got)
	}

	// Callers own the returned slice.
	got[0].Text = "changed"
	again, _ := s.Recognize(context.Background(), img)
	if again[0].Text != "a" {
		t.Error("static engine shares its token slice with callers")
	}
}

func TestStatic_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStatic(nil).Recognize(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWordsToTokens(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(0, 0, 40, 12), Word: "Total", Confidence: 96},
		{Box: image.Rect(50, 0, 90, 12), Word: "$5.00", Confidence: 88.5},
	}
	toks := wordsToTokens(boxes, image.Pt(100, 200))
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(toks))
	}
	if toks[1].Box != image.Rect(150, 200, 190, 212) {
		t.Errorf("box not rebased: %v", toks[1].Box)
	}
	if toks[1].Index != 1 || toks[0].Confidence != 0.96 {
		t.Errorf("unexpected token %+v / %+v", toks[0], toks[1])
	}
}

func TestTesseractRecognize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping tesseract test in short mode")
	}
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}

	img := image.NewRGBA(image.Rect(0, 0, 480, 120))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		t.Fatal(err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 48, DPI: 72})
	if err != nil {
		t.Fatal(err)
	}
	d := &font.Drawer{Dst: img, Src: image.Black, Face: face, Dot: fixed.P(20, 80)}
	d.DrawString("INVOICE")

	eng, err := NewTesseract(TesseractConfig{Language: "eng"})
	if err != nil {
		t.Skipf("tesseract client unavailable: %v", err)
	}
	defer eng.Close()

	toks, err := eng.Recognize(context.Background(), img)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	var found bool
	for _, tok := range toks {
		if !tok.Box.In(img.Bounds()) {
			t.Errorf("token %q box %v outside image", tok.Text, tok.Box)
		}
		if strings.Contains(strings.ToUpper(tok.Text), "INVOICE") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected INVOICE among %+v", toks)
	}
}
