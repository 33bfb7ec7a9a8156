// Package correlate finds the same physical product across marketplaces that
// share no identifier. Matching runs an ordered chain of heuristics and stops
// at the first tier that finds anything; no match is reported as such, never
// guessed.
package correlate

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Tier names the heuristic that produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierSKU
	TierName
	TierContainment
	TierWordOverlap
	TierNumeric
)

func (t Tier) String() string {
	switch t {
	case TierSKU:
		return "sku"
	case TierName:
		return "name"
	case TierContainment:
		return "containment"
	case TierWordOverlap:
		return "word_overlap"
	case TierNumeric:
		return "numeric"
	default:
		return "none"
	}
}

const (
	// minContainmentLen is the shortest normalized name containment is tried on.
	minContainmentLen = 6
	minOverlapWords   = 2
	minOverlapScore   = 0.4
)

// prepared caches the derived forms of one product name.
type prepared struct {
	product domain.Product
	sku     string
	norm    string
	sorted  string
	words   map[string]struct{}
	numeric map[string]struct{}
	plain   map[string]struct{}
}

func prepare(p domain.Product) prepared {
	norm := Normalize(p.Name)
	fields := strings.Fields(norm)
	sort.Strings(fields)
	numeric, plain := splitTokens(norm)
	return prepared{
		product: p,
		sku:     strings.ToLower(strings.TrimSpace(p.SKU)),
		norm:    norm,
		sorted:  strings.Join(fields, " "),
		words:   words(norm),
		numeric: numeric,
		plain:   plain,
	}
}

// matcher returns the index of the chosen candidate or -1.
type matcher func(target prepared, candidates []prepared) int

var chain = []struct {
	tier  Tier
	match matcher
}{
	{TierSKU, matchSKU},
	{TierName, matchName},
	{TierContainment, matchContainment},
	{TierWordOverlap, matchWordOverlap},
	{TierNumeric, matchNumeric},
}

// Match finds the candidate that is the same product as target. It reports
// the tier that fired, or false when no tier matched.
func Match(target domain.Product, candidates []domain.Product) (domain.Product, Tier, bool) {
	if len(candidates) == 0 {
		return domain.Product{}, TierNone, false
	}
	return newIndex(candidates).match(target)
}

// index holds prepared candidates so many targets can be matched against the
// same list without re-normalizing it.
type index struct {
	candidates []prepared
}

func newIndex(candidates []domain.Product) *index {
	ix := &index{candidates: make([]prepared, len(candidates))}
	for i, c := range candidates {
		ix.candidates[i] = prepare(c)
	}
	return ix
}

func (ix *index) match(target domain.Product) (domain.Product, Tier, bool) {
	t := prepare(target)
	for _, m := range chain {
		if i := m.match(t, ix.candidates); i >= 0 {
			return ix.candidates[i].product, m.tier, true
		}
	}
	return domain.Product{}, TierNone, false
}

func matchSKU(t prepared, cs []prepared) int {
	if t.sku == "" {
		return -1
	}
	for i, c := range cs {
		if c.sku == t.sku {
			return i
		}
	}
	return -1
}

func matchName(t prepared, cs []prepared) int {
	if t.norm == "" {
		return -1
	}
	for i, c := range cs {
		if c.norm == t.norm {
			return i
		}
	}
	return -1
}

// matchContainment accepts a candidate whose normalized name contains the
// target's or is contained by it. Word order is ignored by also comparing the
// token-sorted forms.
func matchContainment(t prepared, cs []prepared) int {
	for i, c := range cs {
		if contains(t.norm, c.norm) || contains(t.sorted, c.sorted) {
			return i
		}
	}
	return -1
}

func contains(a, b string) bool {
	short, long := a, b
	if len([]rune(short)) > len([]rune(long)) {
		short, long = long, short
	}
	if len([]rune(short)) < minContainmentLen {
		return false
	}
	return strings.Contains(long, short)
}

// matchWordOverlap scores each candidate by the mean of the shared-word ratio
// on both sides and keeps the first best scorer.
func matchWordOverlap(t prepared, cs []prepared) int {
	if len(t.words) < minOverlapWords {
		return -1
	}
	best, bestScore := -1, 0.0
	for i, c := range cs {
		if len(c.words) < minOverlapWords {
			continue
		}
		shared := float64(intersect(t.words, c.words))
		score := (shared/float64(len(c.words)) + shared/float64(len(t.words))) / 2
		if score >= minOverlapScore && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// matchNumeric requires the same set of model numbers on both sides and at
// least one shared plain word, so a common number alone never matches.
func matchNumeric(t prepared, cs []prepared) int {
	if len(t.numeric) == 0 {
		return -1
	}
	for i, c := range cs {
		if len(c.numeric) == 0 {
			continue
		}
		if !subset(t.numeric, c.numeric) || !subset(c.numeric, t.numeric) {
			continue
		}
		if intersect(t.plain, c.plain) > 0 {
			return i
		}
	}
	return -1
}
