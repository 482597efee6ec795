package classify

import (
	"strings"
	"testing"

	"github.com/andresmejia3/docmask/internal/types"
	"pgregory.net/rapid"
)

// vocabulary mixes every shape the rules react to with ordinary words.
var vocabulary = []string{
	"the", "of", "total", "Shipper:", "invoice", "Invoice", "Acct", "Account:", "P.O.",
	"Origin:", "Destination", "#", "ACME", "CORP", "&", "INC.", "NY",
	"123", "4567", "890", "123456", "00412345", "5551234567",
	"$1,200.00", "12/31/2024", "555-123-4567", "jane@example.com",
	"", " ", "x1", "BL-9931",
}

func genTokens() *rapid.Generator[[]types.Token] {
	word := rapid.OneOf(
		rapid.SampledFrom(vocabulary),
		rapid.StringMatching(`[A-Za-z0-9#$,./@&:-]{0,10}`),
	)
	return rapid.Custom(func(t *rapid.T) []types.Token {
		words := rapid.SliceOfN(word, 0, 40).Draw(t, "words")
		return toks(words...)
	})
}

// justified reports whether ordinal i could have been flagged by some rule,
// judged only from its own text and its predecessor.
func justified(c *Classifier, seq []types.Token, i int) bool {
	t := text(seq[i])
	for _, s := range directShapes {
		if s.re.MatchString(t) {
			return true
		}
	}
	switch {
	case digitsRe.MatchString(t): // merged runs, account context, near end
		return true
	case isUpper(t): // all-caps runs
		return true
	}
	if i > 0 {
		prev := text(seq[i-1])
		if prev == "#" {
			return true
		}
		if _, ok := c.segments[strings.ToLower(nonSegmentRe.ReplaceAllString(prev, ""))]; ok {
			return true
		}
	}
	return false
}

func TestProperty_NoUnjustifiedFlags(t *testing.T) {
	c := Default()
	rapid.Check(t, func(t *rapid.T) {
		seq := genTokens().Draw(t, "tokens")
		res := c.Classify(seq)
		for _, i := range res.Ordinals() {
			if !justified(c, seq, i) {
				t.Fatalf("token %d %q flagged without a matching rule", i, seq[i].Text)
			}
		}
	})
}

func TestProperty_BlankNeverFlagged(t *testing.T) {
	c := Default()
	rapid.Check(t, func(t *rapid.T) {
		seq := genTokens().Draw(t, "tokens")
		res := c.Classify(seq)
		for i, tok := range seq {
			if tok.Blank() && res.Masked(i) {
				t.Fatalf("blank token %d flagged", i)
			}
		}
	})
}

func TestProperty_FlagsWithinSequence(t *testing.T) {
	c := Default()
	rapid.Check(t, func(t *rapid.T) {
		seq := genTokens().Draw(t, "tokens")
		for _, f := range c.Classify(seq).Flags {
			if f.Start < 0 || f.End > len(seq) || f.Start >= f.End {
				t.Fatalf("flag %+v outside sequence of %d", f, len(seq))
			}
		}
	})
}

func TestProperty_Deterministic(t *testing.T) {
	c := Default()
	rapid.Check(t, func(t *rapid.T) {
		seq := genTokens().Draw(t, "tokens")
		a, b := c.Classify(seq).Ordinals(), c.Classify(seq).Ordinals()
		if len(a) != len(b) {
			t.Fatalf("classification not deterministic: %v vs %v", a, b)
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("classification not deterministic: %v vs %v", a, b)
			}
		}
	})
}
