package collate

import (
	"testing"
)

func TestFoldComparator_Compare(t *testing.T) {
	testCases := []struct {
		name string
		opts FoldOptions
		a, b string
		want int // sign only
	}{
		{name: "ordered", a: "apple", b: "banana", want: -1},
		{name: "equal", a: "word", b: "word", want: 0},
		{name: "case folded", a: "Apple", b: "apple", want: 0},
		{name: "case sensitive", opts: FoldOptions{CaseSensitive: true}, a: "Apple", b: "apple", want: -1},
		{name: "stripped punctuation", opts: FoldOptions{StripKey: true}, a: "don't", b: "dont", want: 0},
		{name: "stripped whitespace", opts: FoldOptions{StripKey: true}, a: "new york", b: "newyork", want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmp := NewFold(tc.opts)
			got := cmp.Compare(tc.a, tc.b)
			if sign(got) != tc.want {
				t.Errorf("Compare(%q, %q) = %d, want sign %d", tc.a, tc.b, got, tc.want)
			}
			// Antisymmetry.
			if sign(cmp.Compare(tc.b, tc.a)) != -tc.want {
				t.Errorf("Compare(%q, %q) should have sign %d", tc.b, tc.a, -tc.want)
			}
		})
	}
}

func TestFoldComparator_HasPrefix(t *testing.T) {
	cmp := NewFold(FoldOptions{})
	if !cmp.HasPrefix("Worldly", "world") {
		t.Error("HasPrefix should fold case")
	}
	if cmp.HasPrefix("word", "world") {
		t.Error("HasPrefix should not match a non-prefix")
	}
	if !cmp.HasPrefix("world", "") {
		t.Error("every key has the empty prefix")
	}
}

func TestFoldComparator_Distance(t *testing.T) {
	cmp := NewFold(FoldOptions{})

	testCases := []struct {
		a, b string
		max  int
		want int
	}{
		{a: "world", b: "world", max: 2, want: 0},
		{a: "wrold", b: "world", max: 2, want: 1}, // transposition is one edit
		{a: "wrold", b: "word", max: 2, want: 2},
		{a: "cat", b: "cart", max: 2, want: 1},
		{a: "Word", b: "word", max: 2, want: 0}, // distance after folding
		{a: "", b: "ab", max: 2, want: 2},
	}
	for _, tc := range testCases {
		if got := cmp.Distance(tc.a, tc.b, tc.max); got != tc.want {
			t.Errorf("Distance(%q, %q, %d) = %d, want %d", tc.a, tc.b, tc.max, got, tc.want)
		}
	}

	// Bound pruning: the exact value beyond max does not matter, but it
	// must be greater than max.
	if got := cmp.Distance("completely", "different", 1); got <= 1 {
		t.Errorf("Distance beyond the bound returned %d, want > 1", got)
	}
}

func TestLocaleComparator(t *testing.T) {
	cmp, err := NewLocale("en", FoldOptions{})
	if err != nil {
		t.Fatalf("NewLocale() returned an unexpected error: %v", err)
	}
	if sign(cmp.Compare("apple", "banana")) != -1 {
		t.Error("locale comparator lost basic ordering")
	}
	if cmp.Compare("Apple", "apple") != 0 {
		t.Error("IgnoreCase collator should treat Apple and apple as equal")
	}
	if !cmp.HasPrefix("apples", "APP") {
		t.Error("prefix matching should still fold case")
	}
}

func TestLocaleComparator_BadTag(t *testing.T) {
	if _, err := NewLocale("not a tag!", FoldOptions{}); err == nil {
		t.Error("NewLocale should reject malformed tags")
	}
}

func TestForAttributes(t *testing.T) {
	c, err := ForAttributes("", false, false)
	if err != nil {
		t.Fatalf("ForAttributes() returned an unexpected error: %v", err)
	}
	if _, ok := c.(*FoldComparator); !ok {
		t.Errorf("expected a FoldComparator without a locale, got %T", c)
	}

	c, err = ForAttributes("de", false, false)
	if err != nil {
		t.Fatalf("ForAttributes() returned an unexpected error: %v", err)
	}
	if _, ok := c.(*LocaleComparator); !ok {
		t.Errorf("expected a LocaleComparator with a locale, got %T", c)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
