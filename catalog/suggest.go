package catalog

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Nearest returns the candidate closest to name by case-insensitive edit
// distance, or "" if nothing is close enough to be a plausible typo.
// Ties go to the earliest candidate.
func Nearest(name string, candidates []string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	limit := len(lower) / 3
	if limit < 2 {
		limit = 2
	}

	best, bestDist := "", limit+1
	for _, c := range candidates {
		if c == name {
			continue
		}
		d := levenshtein.ComputeDistance(lower, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
