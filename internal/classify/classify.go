// Package classify decides which OCR tokens of a scanned document carry
// personally identifiable or financial data.
//
// Classification is a single left-to-right pass. At each ordinal the rules
// run in priority order and the first one that acts decides how far the
// cursor moves. Rules only read token text and position, never pixels, so a
// Classifier can be exercised with literal token sequences.
package classify

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/andresmejia3/docmask/internal/types"
)

// Rule names reported in Flag.Rule.
const (
	RuleLongNumber     = "long_number"
	RuleAfterHash      = "after_hash"
	RuleAfterSegment   = "after_segment"
	RuleAccountContext = "account_context"
	RuleCapsRun        = "caps_run"
	RuleNearEnd        = "near_end"
)

// Flag marks the half-open ordinal range [Start, End) for masking.
type Flag struct {
	Start int
	End   int
	Rule  string
}

// Result is the classification of one token sequence. It is built once per
// request and discarded after masking.
type Result struct {
	Flags []Flag
	rule  []string // first rule that flagged each ordinal, "" if none
}

func newResult(n int) *Result {
	return &Result{rule: make([]string, n)}
}

func (r *Result) add(flags ...Flag) {
	for _, f := range flags {
		r.Flags = append(r.Flags, f)
		for i := f.Start; i < f.End; i++ {
			if r.rule[i] == "" {
				r.rule[i] = f.Rule
			}
		}
	}
}

// Masked reports whether the token at ordinal i must be masked.
func (r *Result) Masked(i int) bool {
	return r.Rule(i) != ""
}

// Rule returns the first rule that flagged ordinal i, or "" if none did.
func (r *Result) Rule(i int) string {
	if i < 0 || i >= len(r.rule) {
		return ""
	}
	return r.rule[i]
}

// Ordinals returns every flagged ordinal once, ascending.
func (r *Result) Ordinals() []int {
	var out []int
	for i, name := range r.rule {
		if name != "" {
			out = append(out, i)
		}
	}
	return out
}

// Count returns the number of distinct flagged tokens.
func (r *Result) Count() int {
	return len(r.Ordinals())
}

// RuleCounts tallies flags by rule name.
func (r *Result) RuleCounts() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Flags {
		out[f.Rule] += f.End - f.Start
	}
	return out
}

// RuleNames returns the distinct rule names that fired, sorted.
func (r *Result) RuleNames() []string {
	counts := r.RuleCounts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// verdict is what a rule decided at one ordinal.
type verdict struct {
	flags []Flag
	next  int // cursor position once this rule has acted
	// more lets later rules also act on the same ordinal.
	more bool
}

type rule struct {
	name string
	eval func(c *Classifier, toks []types.Token, i int) (verdict, bool)
}

// pipeline holds the rules in priority order.
var pipeline = []rule{
	{RuleLongNumber, (*Classifier).longNumber},
	{"direct", (*Classifier).direct},
	{RuleAfterHash, (*Classifier).afterHash},
	{RuleAfterSegment, (*Classifier).afterSegment},
	{RuleAccountContext, (*Classifier).accountContext},
	{RuleCapsRun, (*Classifier).capsRun},
	{RuleNearEnd, (*Classifier).nearEnd},
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	rules    Rules
	context  map[string]struct{} // account and bill keywords
	segments map[string]struct{}
}

// New compiles a ruleset.
func New(rules Rules) (*Classifier, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	ctx := keywordSet(rules.AccountKeywords, nonWordRe)
	for k := range keywordSet(rules.BillKeywords, nonWordRe) {
		ctx[k] = struct{}{}
	}
	return &Classifier{
		rules:    rules,
		context:  ctx,
		segments: keywordSet(rules.SegmentKeywords, nonSegmentRe),
	}, nil
}

// Default returns a Classifier using DefaultRules.
func Default() *Classifier {
	c, _ := New(DefaultRules())
	return c
}

// Rules returns the ruleset the classifier was built from.
func (c *Classifier) Rules() Rules { return c.rules }

// Classify flags the tokens to mask. Blank tokens are skipped and never flagged.
func (c *Classifier) Classify(toks []types.Token) *Result {
	res := newResult(len(toks))
	for i := 0; i < len(toks); {
		if toks[i].Blank() {
			i++
			continue
		}
		next := i + 1
		for _, r := range pipeline {
			v, ok := r.eval(c, toks, i)
			if !ok {
				continue
			}
			res.add(v.flags...)
			if v.next > next {
				next = v.next
			}
			if !v.more {
				break
			}
		}
		i = next
	}
	return res
}

func text(t types.Token) string {
	return strings.TrimSpace(t.Text)
}

// flagNext flags the token after i unless it is missing or blank.
func flagNext(toks []types.Token, i int, name string) []Flag {
	if i+1 >= len(toks) || toks[i+1].Blank() {
		return nil
	}
	return []Flag{{Start: i + 1, End: i + 2, Rule: name}}
}

// longNumber merges i with the pure-digit tokens that follow it. Numbers
// split by OCR into groups ("123 456 7890") are masked as one run.
func (c *Classifier) longNumber(toks []types.Token, i int) (verdict, bool) {
	var sb strings.Builder
	sb.WriteString(text(toks[i]))
	j := i + 1
	for j < len(toks) && digitsRe.MatchString(text(toks[j])) {
		sb.WriteString(text(toks[j]))
		j++
	}
	if !longRe.MatchString(sb.String()) {
		return verdict{}, false
	}
	return verdict{flags: []Flag{{Start: i, End: j, Rule: RuleLongNumber}}, next: j}, true
}

func (c *Classifier) direct(toks []types.Token, i int) (verdict, bool) {
	t := text(toks[i])
	for _, s := range directShapes {
		if s.re.MatchString(t) {
			return verdict{flags: []Flag{{Start: i, End: i + 1, Rule: s.name}}, next: i + 1}, true
		}
	}
	return verdict{}, false
}

// afterHash masks the value following a lone "#" ("Invoice # 4455667").
func (c *Classifier) afterHash(toks []types.Token, i int) (verdict, bool) {
	if text(toks[i]) != "#" || i+1 >= len(toks) {
		return verdict{}, false
	}
	return verdict{flags: flagNext(toks, i, RuleAfterHash), next: i + 1}, true
}

func (c *Classifier) afterSegment(toks []types.Token, i int) (verdict, bool) {
	if i+1 >= len(toks) {
		return verdict{}, false
	}
	clean := strings.ToLower(nonSegmentRe.ReplaceAllString(text(toks[i]), ""))
	if _, ok := c.segments[clean]; !ok {
		return verdict{}, false
	}
	return verdict{flags: flagNext(toks, i, RuleAfterSegment), next: i + 1}, true
}

func (c *Classifier) accountContext(toks []types.Token, i int) (verdict, bool) {
	if !accountRe.MatchString(text(toks[i])) || !c.nearKeyword(toks, i) {
		return verdict{}, false
	}
	return verdict{flags: []Flag{{Start: i, End: i + 1, Rule: RuleAccountContext}}, next: i + 1}, true
}

// nearKeyword reports whether any token within KeywordWindow ordinals of i
// (inclusive) is an account or bill keyword once non-word characters are removed.
func (c *Classifier) nearKeyword(toks []types.Token, i int) bool {
	lo := max(0, i-c.rules.KeywordWindow)
	hi := min(len(toks)-1, i+c.rules.KeywordWindow)
	for j := lo; j <= hi; j++ {
		if toks[j].Blank() {
			continue
		}
		k := strings.ToLower(nonWordRe.ReplaceAllString(toks[j].Text, ""))
		if _, ok := c.context[k]; ok {
			return true
		}
	}
	return false
}

// capsRun masks runs of tokens equal to their own upper case, which on
// invoices are mostly company and consignee names. Digit and symbol tokens
// qualify too.
//
// The run does not end evaluation of its first token: nearEnd still sees it
// and may flag the same ordinal again. Flags are idempotent, so the token is
// masked once; both rules stay in Result.Flags.
func (c *Classifier) capsRun(toks []types.Token, i int) (verdict, bool) {
	t := text(toks[i])
	if utf8.RuneCountInString(t) < c.rules.CapsMinLength || !isUpper(t) {
		return verdict{}, false
	}
	k := i + 1
	for k < len(toks) && !toks[k].Blank() && isUpper(text(toks[k])) {
		k++
	}
	return verdict{flags: []Flag{{Start: i, End: k, Rule: RuleCapsRun}}, next: k, more: true}, true
}

func (c *Classifier) nearEnd(toks []types.Token, i int) (verdict, bool) {
	if i < len(toks)-c.rules.NearEnd || !accountRe.MatchString(text(toks[i])) {
		return verdict{}, false
	}
	return verdict{flags: []Flag{{Start: i, End: i + 1, Rule: RuleNearEnd}}, next: i + 1}, true
}

func isUpper(s string) bool {
	return strings.ToUpper(s) == s
}
