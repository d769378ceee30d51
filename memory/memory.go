package memory

import "context"

// Store is the vector storage backend interface.
// Implementations: chromem (embedded, local SDK), qdrant (production).
//
// All methods are tenant-scoped: an empty userID means global scope.
// Search with an empty userID matches memories of every tenant; a non-empty
// userID strictly limits results to that tenant.
type Store interface {
	// Add embeds text and persists a new memory. Returns the assigned id.
	Add(ctx context.Context, text string, payload Payload) (string, error)

	// AddBatch persists several memories in a single write.
	// Returned ids match the order of items.
	AddBatch(ctx context.Context, items []AddItem) ([]string, error)

	// Search returns up to topK nearest memories for the query text,
	// ordered by raw similarity (highest first).
	Search(ctx context.Context, query string, topK int, userID string) ([]SearchHit, error)

	// Update replaces a memory's canonical text in place, re-embedding it.
	// All other payload fields (created_at, importance, user_id) are
	// preserved. Returns ErrNotFound if the id does not exist within the
	// tenant scope.
	Update(ctx context.Context, id string, newText string, userID string) error

	// GetAll lists stored memories in scope, bounded by the store's page
	// size (default 100).
	GetAll(ctx context.Context, userID string) ([]StoredMemory, error)

	// Delete removes a memory. Returns true if it was found and removed.
	Delete(ctx context.Context, id string, userID string) (bool, error)
}

// AddItem is a single entry of a bulk Store write.
type AddItem struct {
	Text    string
	Payload Payload
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), openai (API-based), onnx (local model).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Summarizer distills free text or a conversation into one factual memory
// statement. Optional collaborator: when absent or failing, the ingestion
// pipeline falls back to the raw text (conversations are flattened into a
// role-prefixed transcript).
type Summarizer interface {
	Summarize(ctx context.Context, input Input) (string, error)
}

// Merger combines an existing memory statement with new content into a
// single updated statement. Optional collaborator: when absent or failing,
// a merge replaces the old text with the new content.
type Merger interface {
	Merge(ctx context.Context, oldText, newText string) (string, error)
}

// ContextBuilder synthesizes a short natural-language paragraph from ranked
// memory texts. Optional collaborator: when absent or failing, the retrieval
// pipeline concatenates the top results instead.
type ContextBuilder interface {
	BuildContext(ctx context.Context, texts []string) (string, error)
}

// EventLogger records structured lifecycle events (create, merge, query,
// health snapshots, recoverable collaborator failures). Append-only and
// best-effort: implementations must never fail the calling pipeline.
type EventLogger interface {
	Log(event string, data map[string]any)
}
