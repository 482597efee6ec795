package cmd

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/docmask/internal/config"
	"github.com/andresmejia3/docmask/internal/imageio"
	"github.com/andresmejia3/docmask/internal/ocr"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup resets the package globals a command would normally get from
// PersistentPreRunE.
func setup(t *testing.T) {
	t.Helper()
	prevCfg, prevOut := Cfg, utils.ErrorOutput
	Cfg = config.DefaultConfig()
	DB = nil
	utils.ErrorOutput = io.Discard
	t.Cleanup(func() { Cfg, utils.ErrorOutput = prevCfg, prevOut })
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func writeWhitePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	require.NoError(t, imageio.WriteFile(path, img, imageio.PNG))
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.png"))
	touch(t, filepath.Join(dir, "sub", "b.png"))
	touch(t, filepath.Join(dir, "sub", "c.jpg"))
	touch(t, filepath.Join(dir, "a.redacted.png"))

	got, err := expandInputs([]string{
		filepath.Join(dir, "**", "*.png"),
		filepath.Join(dir, "a.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "sub", "b.png"),
	}, got)
}

func TestExpandInputs_Errors(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.redacted.png"))

	_, err := expandInputs([]string{dir})
	assert.ErrorContains(t, err, "is a directory")

	_, err = expandInputs([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)

	_, err = expandInputs([]string{filepath.Join(dir, "*.png")})
	assert.ErrorContains(t, err, "no files match")
}

func TestValidateRedactFlags(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.png"))
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "b.png"))

	_, err := validateRedactFlags(&RedactOptions{})
	assert.ErrorContains(t, err, "no input files")

	_, err = validateRedactFlags(&RedactOptions{Inputs: []string{filepath.Join(dir, "a.*")}})
	assert.ErrorContains(t, err, "would both be written")

	_, err = validateRedactFlags(&RedactOptions{
		Inputs:     []string{filepath.Join(dir, "*.png")},
		TokensFile: "tokens.json",
	})
	assert.ErrorContains(t, err, "single input")

	paths, err := validateRedactFlags(&RedactOptions{Inputs: []string{filepath.Join(dir, "*.png")}})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestTokenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "a.redacted.tokens.json"), tokenPath(filepath.Join("out", "a.redacted.png")))
}

func TestRunRedact_WithTokenFile(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "invoice.png")
	writeWhitePNG(t, input, 320, 120)

	tokens := filepath.Join(dir, "invoice.tokens.json")
	body := `[{"text":"Total","box":[10,50,80,20]},{"text":"$1,200.00","box":[100,50,80,20]}]`
	require.NoError(t, os.WriteFile(tokens, []byte(body), 0o644))

	Cfg.OutputDir = filepath.Join(dir, "out")
	err := runRedact(context.Background(), RedactOptions{
		Inputs:     []string{input},
		TokensFile: tokens,
		DumpTokens: true,
	})
	require.NoError(t, err)

	out, format, err := imageio.DecodeFile(filepath.Join(dir, "out", "invoice.redacted.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(120, 60), "amount should be masked")
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(20, 60), "label should stay visible")

	dumped, err := ocr.LoadTokenFile(filepath.Join(dir, "out", "invoice.redacted.tokens.json"))
	require.NoError(t, err)
	require.Len(t, dumped, 2)
	assert.Equal(t, "$1,200.00", dumped[1].Text)
	assert.Equal(t, image.Rect(100, 50, 180, 70), dumped[1].Box)
}

func TestRunRedact_ReportsFailedDocuments(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(input, []byte("not an image"), 0o644))
	tokens := filepath.Join(dir, "t.json")
	require.NoError(t, os.WriteFile(tokens, []byte(`[]`), 0o644))

	err := runRedact(context.Background(), RedactOptions{Inputs: []string{input}, TokensFile: tokens})
	assert.ErrorContains(t, err, "1 of 1 documents failed")

	_, statErr := os.Stat(filepath.Join(dir, "broken.redacted.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunRedact_TokenOutsideImage(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "small.png")
	writeWhitePNG(t, input, 50, 50)
	tokens := filepath.Join(dir, "t.json")
	require.NoError(t, os.WriteFile(tokens, []byte(`[{"text":"$5.00","box":[40,40,30,30]}]`), 0o644))

	err := runRedact(context.Background(), RedactOptions{Inputs: []string{input}, TokensFile: tokens})
	assert.Error(t, err)
}
