package search

import (
	"sort"

	"olympus/internal/types"
)

// RankedList is one retrieval leg's output with its fusion weight.
type RankedList struct {
	Weight  float64
	Results []types.SearchResult
}

// FuseRRF merges ranked lists by weighted reciprocal rank:
//
//	score(d) = sum over lists of weight / (k + rank + 1)
//
// where rank is zero-based position in that list. Fused order is descending
// score; equal scores keep first-seen order, so a document appearing earlier
// in an earlier list wins the tie. Per-leg scores are discarded; only ranks
// matter, which makes the fusion immune to the legs' incomparable scales.
func FuseRRF(lists []RankedList, k int) []types.SearchResult {
	if k <= 0 {
		k = 60
	}

	type fused struct {
		result types.SearchResult
		score  float64
	}

	merged := make(map[string]*fused)
	var insertion []string

	for _, list := range lists {
		for rank, r := range list.Results {
			contribution := list.Weight / float64(k+rank+1)
			if entry, ok := merged[r.ID]; ok {
				entry.score += contribution
				continue
			}
			merged[r.ID] = &fused{result: r, score: contribution}
			insertion = append(insertion, r.ID)
		}
	}

	out := make([]types.SearchResult, 0, len(insertion))
	for _, id := range insertion {
		entry := merged[id]
		entry.result.Score = entry.score
		entry.result.RawScore = 0
		entry.result.Reranked = false
		out = append(out, entry.result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
