package agent

import "sort"

// DefaultRRFConstant is the k of reciprocal rank fusion.
const DefaultRRFConstant = 60

// FuseRankings merges ranked lists with reciprocal rank fusion. A document
// at 1-based rank r of a list contributes 1/(r+k); the fused score is the
// mean over all lists, absent lists contributing 0. Ties keep id order.
func FuseRankings(lists [][]Document, k, topK int) []Document {
	if len(lists) == 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultRRFConstant
	}
	sums := make(map[string]float64)
	first := make(map[string]Document)
	for _, list := range lists {
		for rank := range list {
			doc := list[rank]
			sums[doc.ID] += 1 / float64(rank+1+k)
			if _, ok := first[doc.ID]; !ok {
				first[doc.ID] = doc
			}
		}
	}
	out := make([]Document, 0, len(first))
	n := float64(len(lists))
	for id, doc := range first {
		doc.Score = sums[id] / n
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
