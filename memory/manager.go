package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Manager orchestrates the memory lifecycle over a Store and optional LLM
// collaborators. Each operation is a self-contained, stateless invocation
// over one (input, userID) pair; the store is re-read on every call, with
// effects sequenced read-before-decide-before-write. Within one Create, the
// nearest-neighbor lookup reflects the store state before this call's own
// write, so a create never merges against itself.
type Manager struct {
	store Store
	cfg   Config

	// Per-tenant write locks, used only when cfg.SerializeWrites is set.
	locks sync.Map // userID -> *sync.Mutex
}

// NewManager creates a Manager. cfg may be nil for defaults.
func NewManager(store Store, cfg *Config) *Manager {
	return &Manager{
		store: store,
		cfg:   cfg.withDefaults(),
	}
}

// Create ingests input for a tenant: summarize (when a summarizer is
// configured), look up the single nearest neighbor in scope, then merge
// into it or insert a new memory. Only store failures are fatal;
// summarizer and merger failures degrade to deterministic fallbacks.
func (m *Manager) Create(ctx context.Context, input Input, metadata map[string]string, userID string) (*CreateResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	m.logEvent("create_request", map[string]any{"text": input.Transcript(), "user_id": userID})

	summary := m.summarize(ctx, input)

	if m.cfg.SerializeWrites {
		mu := m.tenantLock(userID)
		mu.Lock()
		defer mu.Unlock()
	}

	hits, err := m.store.Search(ctx, summary, 1, userID)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor search: %w", err)
	}

	// Merge only above the threshold: similarity exactly equal to the
	// threshold creates a new memory.
	if len(hits) > 0 && hits[0].Similarity > m.cfg.Threshold {
		return m.merge(ctx, hits[0], summary, userID)
	}

	payload := Payload{
		Text:       summary,
		Summary:    summary,
		UserID:     userID,
		CreatedAt:  m.cfg.Now().UTC(),
		Importance: 1.0,
		Metadata:   metadata,
	}
	if input.Text != "" {
		payload.RawText = input.Text
	} else {
		payload.RawConversation = input.Conversation
	}

	id, err := m.store.Add(ctx, summary, payload)
	if err != nil {
		return nil, fmt.Errorf("add memory: %w", err)
	}

	result := &CreateResult{Status: StatusCreated, ID: id, Summary: summary}
	m.logEvent("create_result", map[string]any{"status": result.Status, "id": id, "user_id": userID})
	return result, nil
}

// merge folds summary into the existing nearest memory. The id and
// created_at of the target are unchanged; only its text is replaced.
func (m *Manager) merge(ctx context.Context, nearest SearchHit, summary, userID string) (*CreateResult, error) {
	old := nearest.Payload.Text
	merged := summary
	if m.cfg.Merger != nil {
		cctx, cancel := m.collaboratorContext(ctx)
		out, err := m.cfg.Merger.Merge(cctx, old, summary)
		cancel()
		if err != nil {
			// Recoverable: fall back to replacing with the new content.
			log.Printf("[MEMORY] Merger failed, replacing with new text: %v", err)
			m.logEvent("merge_fallback", map[string]any{"id": nearest.ID, "error": err.Error()})
		} else {
			merged = out
		}
	}

	if err := m.store.Update(ctx, nearest.ID, merged, userID); err != nil {
		return nil, fmt.Errorf("update merged memory: %w", err)
	}

	result := &CreateResult{
		Status: StatusMerged,
		ID:     nearest.ID,
		Old:    old,
		New:    summary,
		Merged: merged,
	}
	m.logEvent("create_result", map[string]any{"status": result.Status, "id": nearest.ID, "user_id": userID})
	return result, nil
}

// CreateBatch ingests several inputs with per-item summarization and a
// single bulk store write. One item's summarizer failure falls back to that
// item's raw text without aborting the batch. Results match input order.
//
// Batch ingestion skips the dedup/merge decision: every item is inserted.
// metadatas and userIDs may be nil, or must match len(inputs).
func (m *Manager) CreateBatch(ctx context.Context, inputs []Input, metadatas []map[string]string, userIDs []string) ([]*CreateResult, error) {
	if metadatas != nil && len(metadatas) != len(inputs) {
		return nil, &ValidationError{Reason: "metadatas length does not match inputs"}
	}
	if userIDs != nil && len(userIDs) != len(inputs) {
		return nil, &ValidationError{Reason: "user_ids length does not match inputs"}
	}
	for i, input := range inputs {
		if err := input.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	m.logEvent("create_batch_request", map[string]any{"count": len(inputs)})

	items := make([]AddItem, len(inputs))
	for i, input := range inputs {
		summary := m.summarize(ctx, input)
		payload := Payload{
			Text:       summary,
			Summary:    summary,
			CreatedAt:  m.cfg.Now().UTC(),
			Importance: 1.0,
		}
		if metadatas != nil {
			payload.Metadata = metadatas[i]
		}
		if userIDs != nil {
			payload.UserID = userIDs[i]
		}
		if input.Text != "" {
			payload.RawText = input.Text
		} else {
			payload.RawConversation = input.Conversation
		}
		items[i] = AddItem{Text: summary, Payload: payload}
	}

	ids, err := m.store.AddBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("add batch: %w", err)
	}
	if len(ids) != len(items) {
		return nil, fmt.Errorf("add batch: store returned %d ids for %d items", len(ids), len(items))
	}

	results := make([]*CreateResult, len(ids))
	for i, id := range ids {
		results[i] = &CreateResult{Status: StatusCreated, ID: id, Summary: items[i].Text}
	}
	m.logEvent("create_batch_result", map[string]any{"count": len(results)})
	return results, nil
}

// Query retrieves up to topK memories in scope, applies decay, reranks by
// hybrid score, and optionally synthesizes a context paragraph. The result
// order is the final authority for relevance. topK <= 0 uses DefaultTopK.
func (m *Manager) Query(ctx context.Context, query string, topK int, userID string) (*QueryResult, error) {
	if query == "" {
		return nil, &ValidationError{Reason: "query text is empty"}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	m.logEvent("query_request", map[string]any{"query": query, "top_k": topK, "user_id": userID})

	hits, err := m.store.Search(ctx, query, topK, userID)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	now := m.cfg.Now().UTC()
	ApplyDecay(hits, now, m.cfg.Weights.DecayRate)
	ranked := Rerank(hits, now, m.cfg.Weights)

	texts := make([]string, len(ranked))
	for i, hit := range ranked {
		texts[i] = hit.Payload.Text
	}

	result := &QueryResult{
		Query:          query,
		Memories:       ranked,
		ContextSummary: m.buildContext(ctx, texts),
	}
	m.logEvent("query_result", map[string]any{"query": query, "top_k": len(ranked), "user_id": userID})
	return result, nil
}

// Update replaces a memory's text in place. Returns ErrNotFound when the id
// does not exist within the tenant scope.
func (m *Manager) Update(ctx context.Context, id, newText, userID string) error {
	if newText == "" {
		return &ValidationError{Reason: "new text is empty"}
	}
	if err := m.store.Update(ctx, id, newText, userID); err != nil {
		return err
	}
	m.logEvent("update_result", map[string]any{"id": id, "user_id": userID})
	return nil
}

// Delete removes a memory. Returns false when the id was not found in
// scope, so callers can branch without error inspection.
func (m *Manager) Delete(ctx context.Context, id, userID string) (bool, error) {
	found, err := m.store.Delete(ctx, id, userID)
	if err != nil {
		return false, err
	}
	m.logEvent("delete_result", map[string]any{"id": id, "found": found, "user_id": userID})
	return found, nil
}

// List returns all memories in scope, bounded by the store's page size.
func (m *Manager) List(ctx context.Context, userID string) ([]StoredMemory, error) {
	return m.store.GetAll(ctx, userID)
}

// Health scans the tenant's memory set and reduces it to summary stats.
func (m *Manager) Health(ctx context.Context, userID string) (*Health, error) {
	memories, err := m.store.GetAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	h := ComputeHealth(memories)
	m.logEvent("health_snapshot", map[string]any{
		"memory_count": h.MemoryCount,
		"user_id":      userID,
	})
	return &h, nil
}

// summarize runs the summarizer when configured, falling back to the
// flattened transcript on absence or failure. The fallback is deterministic
// so a create never fails because of the summarizer.
func (m *Manager) summarize(ctx context.Context, input Input) string {
	if m.cfg.Summarizer == nil {
		return input.Transcript()
	}
	cctx, cancel := m.collaboratorContext(ctx)
	defer cancel()
	summary, err := m.cfg.Summarizer.Summarize(cctx, input)
	if err != nil || summary == "" {
		log.Printf("[MEMORY] Summarizer failed, using raw text: %v", err)
		m.logEvent("summarize_fallback", map[string]any{"error": errString(err)})
		return input.Transcript()
	}
	return summary
}

// buildContext synthesizes the context paragraph, falling back to the top 3
// texts joined together when the builder is absent or fails.
func (m *Manager) buildContext(ctx context.Context, texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	if m.cfg.ContextBuilder != nil {
		cctx, cancel := m.collaboratorContext(ctx)
		defer cancel()
		summary, err := m.cfg.ContextBuilder.BuildContext(cctx, texts)
		if err == nil && summary != "" {
			return summary
		}
		log.Printf("[MEMORY] Context builder failed, concatenating top results: %v", err)
		m.logEvent("context_fallback", map[string]any{"error": errString(err)})
	}
	top := texts
	if len(top) > 3 {
		top = top[:3]
	}
	return strings.Join(top, "\n")
}

func (m *Manager) collaboratorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.CollaboratorTimeout)
}

func (m *Manager) tenantLock(userID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (m *Manager) logEvent(event string, data map[string]any) {
	if m.cfg.Events == nil {
		return
	}
	m.cfg.Events.Log(event, data)
}

func errString(err error) string {
	if err == nil {
		return "empty result"
	}
	return err.Error()
}
