package mask

import (
	"fmt"
	"strings"

	"github.com/andresmejia3/docmask/internal/types"
)

// Style selects the visual treatment applied to every flagged region of a request.
type Style int

const (
	BlackBox Style = iota
	Blur
	Pixelate
	TextReplace
)

// Styles lists every supported style in declaration order.
var Styles = []Style{BlackBox, Blur, Pixelate, TextReplace}

var styleNames = map[Style]string{
	BlackBox:    "black_box",
	Blur:        "blur",
	Pixelate:    "pixelate",
	TextReplace: "text_replace",
}

var styleAliases = map[string]Style{
	"black_box":    BlackBox,
	"blackbox":     BlackBox,
	"black":        BlackBox,
	"blur":         Blur,
	"pixelate":     Pixelate,
	"pixel":        Pixelate,
	"text_replace": TextReplace,
	"textreplace":  TextReplace,
	"text":         TextReplace,
}

func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return fmt.Sprintf("style(%d)", int(s))
}

// Valid reports whether s is one of the four known styles.
func (s Style) Valid() bool {
	_, ok := styleNames[s]
	return ok
}

// ParseStyle resolves a style name case-insensitively. Dashes and underscores
// are interchangeable, so "TEXT-REPLACE" and "text_replace" are equal.
func ParseStyle(name string) (Style, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if s, ok := styleAliases[key]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w: unknown mask style %q (want one of: %s)", types.ErrInvalidInput, name, strings.Join(StyleNames(), ", "))
}

// StyleNames returns the canonical names of every style.
func StyleNames() []string {
	out := make([]string, 0, len(Styles))
	for _, s := range Styles {
		out = append(out, s.String())
	}
	return out
}
