package memory

import "time"

// Default tunables. Weights are independent; they need not sum to 1.
const (
	DefaultThreshold           = 0.8
	DefaultDecayRate           = 0.01 // per hour
	DefaultAlpha               = 0.7
	DefaultBeta                = 0.2
	DefaultGamma               = 0.1
	DefaultTopK                = 3
	DefaultCollaboratorTimeout = 30 * time.Second
)

// Weights are the hybrid scoring tunables: final = α·similarity +
// β·decay + γ·importance, with decay = exp(-rate·ageHours).
type Weights struct {
	Alpha     float64
	Beta      float64
	Gamma     float64
	DecayRate float64
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Alpha:     DefaultAlpha,
		Beta:      DefaultBeta,
		Gamma:     DefaultGamma,
		DecayRate: DefaultDecayRate,
	}
}

// Config holds Manager tunables and optional collaborators.
type Config struct {
	// Threshold is the dedup/merge similarity boundary. A nearest
	// neighbor with similarity strictly greater than Threshold is merged
	// into; at or below it a new memory is created.
	Threshold float64

	// Weights are the retrieval scoring tunables.
	Weights Weights

	// Summarizer distills input before the dedup decision. Optional.
	Summarizer Summarizer

	// Merger combines old and new text on a merge. Optional.
	Merger Merger

	// ContextBuilder produces the query context paragraph. Optional.
	ContextBuilder ContextBuilder

	// Events receives lifecycle events. Optional, best-effort.
	Events EventLogger

	// CollaboratorTimeout bounds each summarizer/merger/context-builder
	// call. A timeout is a recoverable failure, not an operation failure.
	CollaboratorTimeout time.Duration

	// SerializeWrites serializes the dedup-decision-plus-write step per
	// tenant. Off by default: two concurrent creates with similar content
	// can then both insert, since each observes the store before the
	// other's write.
	SerializeWrites bool

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// withDefaults returns a copy of cfg with zero fields filled in.
func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Threshold == 0 {
		out.Threshold = DefaultThreshold
	}
	if out.Weights == (Weights{}) {
		out.Weights = DefaultWeights()
	}
	if out.Weights.DecayRate == 0 {
		out.Weights.DecayRate = DefaultDecayRate
	}
	if out.CollaboratorTimeout == 0 {
		out.CollaboratorTimeout = DefaultCollaboratorTimeout
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}
