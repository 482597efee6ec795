package classify

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Full-match shapes. Compiled once; shared by every Classifier.
var (
	moneyRe   = regexp.MustCompile(`^\$?\d{1,3}(?:,\d{3})*(?:\.\d{2})?$`)
	dateRe    = regexp.MustCompile(`^\d{2}/\d{2}/(?:\d{2}|\d{4})$`)
	phoneRe   = regexp.MustCompile(`^\d{3}[-.\s]\d{3}[-.\s]\d{4}$`)
	emailRe   = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	addressRe = regexp.MustCompile(`^\d+\s+\w+(?:\s+\w+)*,?\s+[A-Z]{2}\s+\d{5}(?:-\d{4})?$`)
	accountRe = regexp.MustCompile(`^\d{6,}$`)
	longRe    = regexp.MustCompile(`^\d{10,}$`)
	digitsRe  = regexp.MustCompile(`^\d+$`)

	nonWordRe    = regexp.MustCompile(`\W`)
	nonSegmentRe = regexp.MustCompile(`[^A-Za-z/]`)
)

// directShapes are checked in order by the single-token rule.
var directShapes = []struct {
	name string
	re   *regexp.Regexp
}{
	{"money", moneyRe},
	{"date", dateRe},
	{"phone", phoneRe},
	{"email", emailRe},
	{"address", addressRe},
}

// Rules is the keyword and window configuration of a Classifier. The regex
// shapes are fixed; only the context around them is tunable.
type Rules struct {
	AccountKeywords []string `yaml:"account_keywords"`
	BillKeywords    []string `yaml:"bill_keywords"`
	SegmentKeywords []string `yaml:"segment_keywords"`

	// KeywordWindow is how many ordinals either side of an account-like
	// number are searched for an account or bill keyword.
	KeywordWindow int `yaml:"keyword_window"`
	// NearEnd is how many trailing tokens get account-like numbers masked
	// without any keyword context.
	NearEnd int `yaml:"near_end"`
	// CapsMinLength is the minimum length of a token that starts an all-caps run.
	CapsMinLength int `yaml:"caps_min_length"`
}

// DefaultRules returns the built-in invoice/bill-of-lading ruleset.
func DefaultRules() Rules {
	return Rules{
		AccountKeywords: []string{"Account", "Acct", "Acc"},
		BillKeywords:    []string{"Bill", "Invoice", "Lading", "P.O.", "PO", "Freight"},
		SegmentKeywords: []string{"Origin", "Destination", "Origin/Destination"},
		KeywordWindow:   5,
		NearEnd:         9,
		CapsMinLength:   4,
	}
}

// LoadRules reads a YAML rules file. Fields absent from the file keep their
// default values.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	b, err := os.ReadFile(path)
	if err != nil {
		return rules, err
	}
	if err := yaml.Unmarshal(b, &rules); err != nil {
		return rules, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

// Validate rejects rulesets that would make a rule meaningless.
func (r Rules) Validate() error {
	if r.KeywordWindow < 0 {
		return fmt.Errorf("keyword_window must be >= 0, got %d", r.KeywordWindow)
	}
	if r.NearEnd < 0 {
		return fmt.Errorf("near_end must be >= 0, got %d", r.NearEnd)
	}
	if r.CapsMinLength < 1 {
		return fmt.Errorf("caps_min_length must be >= 1, got %d", r.CapsMinLength)
	}
	return nil
}

// YAML renders the ruleset in the same shape LoadRules reads.
func (r Rules) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// keywordSet normalizes keywords with strip and lowercases them for lookup.
func keywordSet(words []string, strip *regexp.Regexp) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		k := strings.ToLower(strip.ReplaceAllString(w, ""))
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
