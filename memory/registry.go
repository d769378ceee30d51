package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StoreOptions configure a store backend constructed through the Registry.
type StoreOptions struct {
	// URL is the backend address (ignored by embedded stores).
	URL string

	// APIKey authenticates against managed backends.
	APIKey string

	// Collection is the index namespace holding all memories.
	Collection string
}

// EmbedderOptions configure an embedder constructed through the Registry.
type EmbedderOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int

	// ModelPath and TokenizerPath locate local model files.
	ModelPath     string
	TokenizerPath string
}

// LLMOptions configure the LLM collaborators constructed through the
// Registry.
type LLMOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Collaborators bundles the optional LLM-backed steps of the pipelines.
// Any field may be nil.
type Collaborators struct {
	Summarizer     Summarizer
	Merger         Merger
	ContextBuilder ContextBuilder
}

// StoreFactory builds a Store backend.
type StoreFactory func(ctx context.Context, embedder Embedder, opts StoreOptions) (Store, error)

// EmbedderFactory builds an Embedder.
type EmbedderFactory func(opts EmbedderOptions) (Embedder, error)

// LLMFactory builds the LLM collaborator set for one provider.
type LLMFactory func(opts LLMOptions) (Collaborators, error)

// Registry maps string keys to component constructors. It is an explicit
// value built once at process start and passed by reference into whatever
// needs it; registration happens in main, not in package init.
type Registry struct {
	stores    map[string]StoreFactory
	embedders map[string]EmbedderFactory
	llms      map[string]LLMFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stores:    make(map[string]StoreFactory),
		embedders: make(map[string]EmbedderFactory),
		llms:      make(map[string]LLMFactory),
	}
}

// RegisterStore registers a store backend under a key. Later registrations
// with the same key win.
func (r *Registry) RegisterStore(name string, f StoreFactory) {
	r.stores[strings.ToLower(name)] = f
}

// RegisterEmbedder registers an embedder provider under a key.
func (r *Registry) RegisterEmbedder(name string, f EmbedderFactory) {
	r.embedders[strings.ToLower(name)] = f
}

// RegisterLLM registers an LLM provider under a key.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.llms[strings.ToLower(name)] = f
}

// NewStore builds the store backend registered under name.
func (r *Registry) NewStore(ctx context.Context, name string, embedder Embedder, opts StoreOptions) (Store, error) {
	f, ok := r.stores[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported store backend %q, available: %s", name, keys(r.stores))
	}
	return f(ctx, embedder, opts)
}

// NewEmbedder builds the embedder provider registered under name.
func (r *Registry) NewEmbedder(name string, opts EmbedderOptions) (Embedder, error) {
	f, ok := r.embedders[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported embedder %q, available: %s", name, keys(r.embedders))
	}
	return f(opts)
}

// NewLLM builds the collaborator set registered under name.
func (r *Registry) NewLLM(name string, opts LLMOptions) (Collaborators, error) {
	f, ok := r.llms[strings.ToLower(name)]
	if !ok {
		return Collaborators{}, fmt.Errorf("unsupported llm provider %q, available: %s", name, keys(r.llms))
	}
	return f(opts)
}

func keys[V any](m map[string]V) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
