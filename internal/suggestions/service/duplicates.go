package suggestions

import (
	"sort"
	"strings"

	"ms-speakers/internal/models"
)

// DuplicateCandidate pairs an unapproved suggestion with the approved ones it
// may duplicate. It is advisory; Merge enforces the real rules.
type DuplicateCandidate struct {
	Suggestion   models.Suggestion   `json:"suggestion"`
	Matches      []models.Suggestion `json:"matches"`
	SharedTokens []string            `json:"shared_tokens"`
}

func tokenize(name string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// DetectDuplicates flags every pending or rejected suggestion whose
// lower-cased, whitespace-split name shares at least one token with an
// approved suggestion. Suggestions already merged are skipped.
func DetectDuplicates(list []models.Suggestion) []DuplicateCandidate {
	var approved []models.Suggestion
	for _, s := range list {
		if s.Approved {
			approved = append(approved, s)
		}
	}

	candidates := []DuplicateCandidate{}
	for _, s := range list {
		if s.Approved || s.Duplicate {
			continue
		}
		own := tokenize(s.Speaker)

		var matches []models.Suggestion
		shared := map[string]struct{}{}
		for _, a := range approved {
			hit := false
			for tok := range tokenize(a.Speaker) {
				if _, ok := own[tok]; ok {
					shared[tok] = struct{}{}
					hit = true
				}
			}
			if hit {
				matches = append(matches, a)
			}
		}
		if len(matches) == 0 {
			continue
		}

		tokens := make([]string, 0, len(shared))
		for tok := range shared {
			tokens = append(tokens, tok)
		}
		sort.Strings(tokens)
		candidates = append(candidates, DuplicateCandidate{Suggestion: s, Matches: matches, SharedTokens: tokens})
	}
	return candidates
}
