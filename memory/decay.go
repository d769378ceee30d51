package memory

import (
	"math"
	"time"
)

// DecayFactor returns a multiplicative relevance factor in (0, 1] based on
// how old a memory is: exp(-rate * ageHours). New memories are close to
// 1.0 and old ones decay toward 0. Ages are clamped at zero, so a
// created_at in the future (clock skew) yields 1.0 rather than a factor
// above 1.
func DecayFactor(createdAt, now time.Time, rate float64) float64 {
	ageHours := now.Sub(createdAt).Seconds() / 3600
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Exp(-rate * ageHours)
}

// ApplyDecay sets DecayedScore = Similarity * DecayFactor on every hit.
// Untimed hits (zero CreatedAt) keep their raw similarity: a memory with no
// timestamp is treated as fresh, never silently excluded.
func ApplyDecay(hits []SearchHit, now time.Time, rate float64) {
	for i := range hits {
		if hits[i].Payload.CreatedAt.IsZero() {
			hits[i].DecayedScore = hits[i].Similarity
			continue
		}
		hits[i].DecayedScore = hits[i].Similarity * DecayFactor(hits[i].Payload.CreatedAt, now, rate)
	}
}
