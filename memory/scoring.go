package memory

import (
	"math"
	"sort"
	"time"
)

// HybridScore combines semantic similarity, recency, and importance into a
// single ranking score: α·similarity + β·decay + γ·importance. Higher is
// better. An untimed createdAt (zero value) contributes a decay factor of
// 1.0. The result is rounded to 6 decimal digits for reproducibility.
//
// Pure function: no side effects, no I/O.
func HybridScore(similarity float64, createdAt time.Time, importance float64, now time.Time, w Weights) float64 {
	recency := 1.0
	if !createdAt.IsZero() {
		recency = DecayFactor(createdAt, now, w.DecayRate)
	}
	score := w.Alpha*similarity + w.Beta*recency + w.Gamma*importance
	return round6(score)
}

// Rerank orders hits by hybrid score, descending. FinalScore is computed
// for every hit before sorting; an importance missing from the payload
// (zero value) counts as 1.0. The sort is stable, so equal scores keep
// their input order, and the output is a permutation of the input.
func Rerank(hits []SearchHit, now time.Time, w Weights) []SearchHit {
	out := make([]SearchHit, len(hits))
	copy(out, hits)
	for i := range out {
		importance := out[i].Payload.Importance
		if importance == 0 {
			importance = 1.0
		}
		out[i].FinalScore = HybridScore(out[i].Similarity, out[i].Payload.CreatedAt, importance, now, w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
