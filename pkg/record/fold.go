package record

import (
	"sync"

	"golang.org/x/text/cases"
)

// casers are not safe for concurrent use, so each call borrows one.
var foldPool = sync.Pool{
	New: func() any { return cases.Fold() },
}

// Fold returns the Unicode case-folded form of s. Two strings are equal
// ignoring case exactly when their folded forms are equal.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	c := foldPool.Get().(cases.Caser)
	out := c.String(s)
	c.Reset()
	foldPool.Put(c)
	return out
}

// FoldSet builds a lookup set of folded values.
func FoldSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[Fold(v)] = struct{}{}
	}
	return set
}
