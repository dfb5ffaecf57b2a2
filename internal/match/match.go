// Package match resolves which remote entry corresponds to a local entry
// when no stable identifier exists on the local side.
package match

import (
	"strings"
	"unicode"

	"github.com/sunsync/sunsync/internal/catalog"
)

// Threshold is the minimum similarity (exclusive) before two
// differently-spelled names are considered the same app. Deliberately high:
// silently merging two different games is worse than a duplicate entry.
const Threshold = 0.8

// Strategy resolves a local display name to an index in the remote set.
// The current implementation is edit-distance based; keeping it behind an
// interface lets a content- or ID-based scheme replace it without touching
// the classification engine.
type Strategy interface {
	Match(localName string, remote []catalog.Entry) (index int, ok bool)
}

// NameMatcher matches by normalized-name similarity.
type NameMatcher struct {
	// Threshold overrides the package default when > 0.
	Threshold float64
}

func (m NameMatcher) Match(localName string, remote []catalog.Entry) (int, bool) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = Threshold
	}
	normalizedLocal := catalog.NormalizeName(localName)
	if normalizedLocal == "" {
		return 0, false
	}
	bestIndex := -1
	bestScore := threshold
	for i, candidate := range remote {
		normalizedRemote := catalog.NormalizeName(candidate.Name)
		if normalizedRemote == normalizedLocal {
			return i, true
		}
		if digitRuns(normalizedLocal) != digitRuns(normalizedRemote) {
			// Different numbering almost always means a different game
			// ("Half-Life 2" vs "Half-Life 3"), however close the spelling.
			continue
		}
		score := Similarity(normalizedLocal, normalizedRemote)
		// Strictly greater than the threshold; ties keep the first
		// candidate encountered in remote-set order.
		if score > bestScore {
			bestScore = score
			bestIndex = i
		}
	}
	if bestIndex < 0 {
		return 0, false
	}
	return bestIndex, true
}

// Similarity is 1 - (edit distance / length of longer string) on a 0-1
// scale, 1 meaning identical. Inputs are expected to be normalized already.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra := []rune(a)
	rb := []rune(b)
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	if longer == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longer)
}

// levenshtein is the classic insertion/deletion/substitution edit distance
// with unit costs, using a two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// digitRuns concatenates the digit sequences of a name ("half life 2" ->
// "2") so numbered sequels can be told apart before fuzzy scoring.
func digitRuns(name string) string {
	var b strings.Builder
	inRun := false
	for _, r := range name {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
			inRun = true
			continue
		}
		if inRun {
			b.WriteByte(' ')
			inRun = false
		}
	}
	return strings.TrimSpace(b.String())
}

func minInt(values ...int) int {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}
