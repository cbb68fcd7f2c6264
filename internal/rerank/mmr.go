package rerank

import (
	"strings"

	"olympus/internal/types"
)

// selectMMR picks topN results balancing relevance against redundancy:
// at each step the candidate maximizing
//
//	score - lambda*maxSimilarityToSelected
//
// is taken, where similarity is Jaccard overlap of keyword sets. Input must
// already be sorted by score descending; the first pick is always the top
// result.
func selectMMR(sorted []types.SearchResult, topN int, lambda float64) []types.SearchResult {
	if len(sorted) <= 1 || topN <= 0 {
		if len(sorted) > topN && topN > 0 {
			return sorted[:topN]
		}
		return sorted
	}
	if topN > len(sorted) {
		topN = len(sorted)
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	keywordSets := make([]map[string]bool, len(sorted))
	for i, r := range sorted {
		keywordSets[i] = keywordSet(r.Keywords)
	}

	selected := []types.SearchResult{sorted[0]}
	selectedSets := []map[string]bool{keywordSets[0]}
	remaining := make([]int, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		remaining = append(remaining, i)
	}

	for len(selected) < topN && len(remaining) > 0 {
		// Scores sit in [0,1] and lambda in [0,1], so values never go
		// below -1; start under that.
		bestIdx := -1
		bestVal := -2.0
		for pos, idx := range remaining {
			maxSim := 0.0
			for _, set := range selectedSets {
				if sim := jaccard(keywordSets[idx], set); sim > maxSim {
					maxSim = sim
				}
			}
			val := sorted[idx].Score - lambda*maxSim
			if val > bestVal {
				bestVal = val
				bestIdx = pos
			}
		}
		idx := remaining[bestIdx]
		selected = append(selected, sorted[idx])
		selectedSets = append(selectedSets, keywordSets[idx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func keywordSet(keywords string) map[string]bool {
	set := make(map[string]bool)
	for _, k := range strings.Split(strings.ToLower(keywords), ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			set[k] = true
		}
	}
	return set
}

// jaccard is |intersection| / |union|; two empty sets count as disjoint.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
