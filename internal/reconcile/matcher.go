// internal/reconcile/matcher.go
package reconcile

import (
	"strings"

	"flowcoach/internal/cards"
)

// trademarkGlyphs are stripped before comparison; marketing names carry them
// inconsistently across the linked list and the catalog.
var trademarkGlyphs = strings.NewReplacer("™", "", "®", "", "©", "")

// stopwords are generic marketing words that differ between the authoritative
// nickname and the catalog product name for the same underlying product.
var stopwords = map[string]struct{}{
	"card":      {},
	"credit":    {},
	"preferred": {},
	"gold":      {},
}

// normalizeName lowercases, strips trademark glyphs and stopwords, and
// collapses whitespace. Two distinct products can normalize to the same key;
// that false positive is accepted rather than papered over.
func normalizeName(s string) string {
	s = strings.ToLower(trademarkGlyphs.Replace(s))
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Matcher answers whether a catalog product corresponds to an entry in the
// authoritative linked list. Slug matching is exact; name matching is fuzzy
// because legacy linked rows may lack a canonical slug.
type Matcher struct {
	slugs       map[string]struct{}
	names       map[string]struct{}
	issuerNames map[string]struct{}
}

func NewMatcher(linked []cards.LinkedCard) *Matcher {
	m := &Matcher{
		slugs:       make(map[string]struct{}),
		names:       make(map[string]struct{}),
		issuerNames: make(map[string]struct{}),
	}
	for _, card := range linked {
		if card.CardProductSlug != "" {
			m.slugs[card.CardProductSlug] = struct{}{}
		}
		name := normalizeName(card.Nickname)
		if name == "" {
			continue
		}
		m.names[name] = struct{}{}
		if issuer := normalizeName(card.Issuer); issuer != "" {
			m.issuerNames[issuer+" "+name] = struct{}{}
		}
	}
	return m
}

// HasSlug reports whether the authoritative list carries the exact slug.
func (m *Matcher) HasSlug(slug string) bool {
	_, ok := m.slugs[slug]
	return ok
}

// Match reports whether the catalog product appears in the authoritative
// list, by slug, normalized name, or normalized issuer+name.
func (m *Matcher) Match(p cards.CatalogProduct) bool {
	if p.Slug != "" {
		if _, ok := m.slugs[p.Slug]; ok {
			return true
		}
	}
	name := normalizeName(p.ProductName)
	if name == "" {
		return false
	}
	if _, ok := m.names[name]; ok {
		return true
	}
	if issuer := normalizeName(p.Issuer); issuer != "" {
		if _, ok := m.issuerNames[issuer+" "+name]; ok {
			return true
		}
	}
	return false
}
