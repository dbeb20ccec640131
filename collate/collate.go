// Package collate provides the comparator capability consumed by the key
// index: a total order over key text, prefix matching under the same
// normalization, and a bounded edit distance for fuzzy lookup.
//
// Comparators are injected into readers and builders explicitly so that
// containers with different locales can coexist in one process.
package collate

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	xcollate "golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Comparator is a total ordering over key text plus a bounded edit
// distance. Implementations must be safe for concurrent use.
type Comparator interface {
	// Compare returns a negative number when a sorts before b, a positive
	// number when a sorts after b, and zero when they are equivalent.
	Compare(a, b string) int
	// HasPrefix reports whether s begins with prefix under the same
	// normalization Compare applies.
	HasPrefix(s, prefix string) bool
	// Distance returns the edit distance between a and b, counting a
	// transposition of adjacent runes as one edit. Any value greater than
	// max may be returned as soon as the bound is provably exceeded.
	Distance(a, b string, max int) int
}

// FoldOptions controls key normalization before comparison. The zero
// value folds case and keeps all runes.
type FoldOptions struct {
	// CaseSensitive disables case folding.
	CaseSensitive bool
	// StripKey drops all runes that are not letters or digits, so
	// "don't" and "dont" compare equal.
	StripKey bool
}

// FoldComparator orders keys by their folded byte representation. It
// mirrors the v1/v2 sort-key behavior: NFC normalization, optional case
// folding, optional stripping to letters and digits.
type FoldComparator struct {
	opts FoldOptions
}

var _ Comparator = (*FoldComparator)(nil)

// NewFold creates a FoldComparator.
func NewFold(opts FoldOptions) *FoldComparator {
	return &FoldComparator{opts: opts}
}

// newTransformer builds a fresh transformer chain; cases.Caser carries
// internal state and is not safe for concurrent use, so one is built per
// Fold call.
func (c *FoldComparator) newTransformer() transform.Transformer {
	ts := []transform.Transformer{norm.NFC}
	if !c.opts.CaseSensitive {
		ts = append(ts, cases.Fold())
	}
	if c.opts.StripKey {
		ts = append(ts, runes.Remove(runes.Predicate(func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})))
	}
	return transform.Chain(ts...)
}

// Fold returns the normalized form of s used for ordering.
func (c *FoldComparator) Fold(s string) string {
	out, _, err := transform.String(c.newTransformer(), s)
	if err != nil {
		// Malformed input falls back to the raw text; ordering stays total.
		return s
	}
	return out
}

func (c *FoldComparator) Compare(a, b string) int {
	return strings.Compare(c.Fold(a), c.Fold(b))
}

func (c *FoldComparator) HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(c.Fold(s), c.Fold(prefix))
}

func (c *FoldComparator) Distance(a, b string, max int) int {
	return boundedDistance([]rune(c.Fold(a)), []rune(c.Fold(b)), max)
}

// LocaleComparator orders keys with a locale collator from
// golang.org/x/text/collate. Prefix matching and edit distance use the
// fold normalization, which is what the fuzzy scan needs; only the total
// order is locale-specific.
type LocaleComparator struct {
	mu   sync.Mutex
	col  *xcollate.Collator
	fold *FoldComparator
}

var _ Comparator = (*LocaleComparator)(nil)

// NewLocale creates a comparator for a BCP 47 tag such as "de" or
// "zh-u-co-pinyin".
func NewLocale(tag string, opts FoldOptions) (*LocaleComparator, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return nil, err
	}
	var colOpts []xcollate.Option
	if !opts.CaseSensitive {
		colOpts = append(colOpts, xcollate.IgnoreCase)
	}
	return &LocaleComparator{
		col:  xcollate.New(t, colOpts...),
		fold: NewFold(opts),
	}, nil
}

// Compare is serialized: the collator reuses an internal buffer.
func (c *LocaleComparator) Compare(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.col.CompareString(a, b)
}

func (c *LocaleComparator) HasPrefix(s, prefix string) bool {
	return c.fold.HasPrefix(s, prefix)
}

func (c *LocaleComparator) Distance(a, b string, max int) int {
	return c.fold.Distance(a, b, max)
}

// ForAttributes builds the comparator described by a container's header
// attributes: a locale collator when a locale is declared, otherwise the
// fold comparator.
func ForAttributes(locale string, caseSensitive, stripKey bool) (Comparator, error) {
	opts := FoldOptions{CaseSensitive: caseSensitive, StripKey: stripKey}
	if locale != "" {
		return NewLocale(locale, opts)
	}
	return NewFold(opts), nil
}
