// Package config loads memkitd configuration from defaults, an optional
// YAML file, and MEMKIT_-prefixed environment variables, in that priority
// order.
package config

import "time"

// Config is the full memkitd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server" validate:"required"`
	Store    StoreConfig    `koanf:"store" validate:"required"`
	Embedder EmbedderConfig `koanf:"embedder" validate:"required"`
	LLM      LLMConfig      `koanf:"llm"`
	Memory   MemoryConfig   `koanf:"memory"`
	EventLog EventLogConfig `koanf:"event_log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `koanf:"addr" validate:"required"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is the store implementation key.
	Backend string `koanf:"backend" validate:"required,oneof=chromem qdrant"`

	// URL is the backend address (qdrant only).
	URL string `koanf:"url"`

	// APIKey authenticates against managed backends (qdrant only).
	APIKey string `koanf:"api_key"`

	// Collection is the index namespace holding all memories.
	Collection string `koanf:"collection"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	// Provider is the embedder implementation key.
	Provider string `koanf:"provider" validate:"required,oneof=mock openai onnx"`

	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`

	// Dimensions is the vector size; must match the model.
	Dimensions int `koanf:"dimensions" validate:"omitempty,min=1"`

	// ModelPath and TokenizerPath locate local model files (onnx only).
	ModelPath     string `koanf:"model_path"`
	TokenizerPath string `koanf:"tokenizer_path"`

	// CacheSize bounds the embedding cache; 0 disables caching.
	CacheSize int64 `koanf:"cache_size" validate:"min=0"`
}

// LLMConfig selects the provider backing the summarizer, merger, and
// context builder. An empty provider disables all three; the pipelines
// then use their deterministic fallbacks.
type LLMConfig struct {
	Provider string `koanf:"provider" validate:"omitempty,oneof=openrouter anthropic"`
	APIKey   string `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
}

// MemoryConfig holds the lifecycle engine tunables.
type MemoryConfig struct {
	// SimilarityThreshold is the dedup/merge boundary (exclusive).
	SimilarityThreshold float64 `koanf:"similarity_threshold" validate:"min=0,max=1"`

	// Alpha, Beta, and Gamma weight similarity, recency, and importance
	// in the hybrid score.
	Alpha float64 `koanf:"alpha" validate:"min=0"`
	Beta  float64 `koanf:"beta" validate:"min=0"`
	Gamma float64 `koanf:"gamma" validate:"min=0"`

	// DecayRate is the per-hour relevance decay.
	DecayRate float64 `koanf:"decay_rate" validate:"min=0"`

	// CollaboratorTimeout bounds each LLM collaborator call.
	CollaboratorTimeout time.Duration `koanf:"collaborator_timeout"`

	// SerializeWrites serializes dedup-decision-plus-write per tenant.
	SerializeWrites bool `koanf:"serialize_writes"`
}

// EventLogConfig configures the append-only event trail.
type EventLogConfig struct {
	// Path is the JSONL file location; empty disables file logging.
	Path string `koanf:"path"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Backend:    "chromem",
			URL:        "localhost:6334",
			Collection: "memories",
		},
		Embedder: EmbedderConfig{
			Provider:   "mock",
			Dimensions: 384,
			CacheSize:  10_000,
		},
		Memory: MemoryConfig{
			SimilarityThreshold: 0.8,
			Alpha:               0.7,
			Beta:                0.2,
			Gamma:               0.1,
			DecayRate:           0.01,
			CollaboratorTimeout: 30 * time.Second,
		},
		EventLog: EventLogConfig{
			Path: "memory_events.jsonl",
		},
	}
}
