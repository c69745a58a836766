package detection

import (
	"sort"

	"github.com/larderhq/pantry-scan/internal/catalog"
)

// DefaultAlternativeLimit caps the ranked alternative list to keep UI and
// payload size bounded.
const DefaultAlternativeLimit = 5

// Likelihood cut-offs for the ranked score of an alternative.
const (
	altHighCutoff   = 0.75
	altMediumCutoff = 0.45
)

// Visual-similarity bonus: a candidate in the same group as the detection
// outranks an unrelated candidate of equal prior.
const sameGroupBonus = 0.25

// Alternative is one plausible correction for a detected ingredient.
type Alternative struct {
	Canonical  string `json:"canonical"`
	Display    string `json:"display"`
	Likelihood Tier   `json:"likelihood"`
}

// Ranker produces ordered alternative lists from the static catalog. It is
// deterministic given its inputs and performs no persistence.
type Ranker struct {
	catalog *catalog.Catalog
	limit   int
}

// NewRanker builds a ranker over a loaded catalog. A non-positive limit
// selects the default.
func NewRanker(cat *catalog.Catalog, limit int) *Ranker {
	if limit <= 0 {
		limit = DefaultAlternativeLimit
	}
	return &Ranker{catalog: cat, limit: limit}
}

type scoredAlternative struct {
	ingredient catalog.Ingredient
	score      float64
	sameGroup  bool
}

// Rank returns plausible alternative canonical names for a detection,
// highest likelihood first. If group is empty and the detected name is in
// the catalog, the detection's own similarity group is used.
func (r *Ranker) Rank(detectedName, group string) []Alternative {
	detected := catalog.Normalize(detectedName)
	if group == "" {
		if ing, ok := r.catalog.Ingredient(detected); ok {
			group = ing.Group
		}
	}

	scored := make([]scoredAlternative, 0)
	for _, ing := range r.catalog.Ingredients() {
		if ing.Canonical == detected {
			continue
		}
		sameGroup := group != "" && ing.Group == group
		score := ing.Prior
		if sameGroup {
			score += sameGroupBonus
		}
		scored = append(scored, scoredAlternative{ingredient: ing, score: score, sameGroup: sameGroup})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		// same-group candidates rank above unrelated ones of equal score
		if scored[i].sameGroup != scored[j].sameGroup {
			return scored[i].sameGroup
		}
		return scored[i].ingredient.Canonical < scored[j].ingredient.Canonical
	})

	if len(scored) > r.limit {
		scored = scored[:r.limit]
	}

	alternatives := make([]Alternative, 0, len(scored))
	for _, s := range scored {
		alternatives = append(alternatives, Alternative{
			Canonical:  s.ingredient.Canonical,
			Display:    s.ingredient.Display,
			Likelihood: likelihoodFor(s.score),
		})
	}
	return alternatives
}

func likelihoodFor(score float64) Tier {
	switch {
	case score >= altHighCutoff:
		return TierHigh
	case score >= altMediumCutoff:
		return TierMedium
	default:
		return TierLow
	}
}
