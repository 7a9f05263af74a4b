package searchengine

import (
	"github.com/armon/go-radix"

	"github.com/juanj0tj/sistema-recuperacion-informacion/internal/indexfmt"
)

// TermIndex is the in-memory mapping term -> (offset, length) loaded from
// index.terms.json at startup (§4.6 "load index.terms.json into an
// in-memory mapping"). It is backed by a radix tree rather than a plain Go
// map so that the auxiliary debug surface can also answer prefix queries
// over the vocabulary without a second structure.
type TermIndex struct {
	tree *radix.Tree
}

// NewTermIndex builds a TermIndex from a decoded term map.
func NewTermIndex(terms indexfmt.TermMap) *TermIndex {
	tree := radix.New()
	for term, off := range terms {
		tree.Insert(term, off)
	}
	return &TermIndex{tree: tree}
}

// Lookup returns the (offset, length) for term, if present.
func (t *TermIndex) Lookup(term string) (indexfmt.TermOffset, bool) {
	v, ok := t.tree.Get(term)
	if !ok {
		return indexfmt.TermOffset{}, false
	}
	return v.(indexfmt.TermOffset), true
}

// Len reports the vocabulary size.
func (t *TermIndex) Len() int {
	return t.tree.Len()
}

// PrefixTerms returns every term sharing prefix, up to limit entries. Used
// only by the auxiliary debug surface (spec.md §6 "not part of the core
// contract").
func (t *TermIndex) PrefixTerms(prefix string, limit int) []string {
	var out []string
	t.tree.WalkPrefix(prefix, func(term string, _ interface{}) bool {
		out = append(out, term)
		return len(out) >= limit
	})
	return out
}
