// Package chromem backs the memory Store with chromem-go, a pure Go
// embedded vector database. Suited to local development and tests: nothing
// to run, everything in process memory.
//
// All tenants share one collection; scoping is a user_id metadata filter,
// so an empty user id searches globally. chromem has no listing API, so the
// wrapper keeps its own id index for GetAll and scoped Delete/Update.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"

	"github.com/becomeliminal/memkit/memory"
)

// DefaultCollection is the collection name when none is configured.
const DefaultCollection = "memories"

// pageSize bounds GetAll listings.
const pageSize = 100

// Config configures the embedded store.
type Config struct {
	// Collection is the namespace holding all memories.
	Collection string
}

// Store implements memory.Store on top of chromem-go.
type Store struct {
	col      *chromem.Collection
	embedder memory.Embedder

	mu     sync.RWMutex
	owners map[string]string // id -> user_id
	order  []string          // ids in insertion order
}

// New creates an embedded store. The embedder supplies vectors for both
// writes and query text.
func New(embedder memory.Embedder, cfg Config) (*Store, error) {
	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}

	db := chromem.NewDB()
	// Embeddings are provided explicitly, so no embedding func and the
	// default cosine distance.
	col, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Store{
		col:      col,
		embedder: embedder,
		owners:   make(map[string]string),
	}, nil
}

// Add embeds text and inserts a new document.
func (s *Store) Add(ctx context.Context, text string, payload memory.Payload) (string, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed text: %w", err)
	}

	id := uuid.NewString()
	doc := chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: vec,
		Metadata:  encodePayload(payload),
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	s.owners[id] = payload.UserID
	s.order = append(s.order, id)
	s.mu.Unlock()

	log.Printf("[CHROMEM] Stored memory id=%s user=%q", id, payload.UserID)
	return id, nil
}

// AddBatch embeds all texts in one call and inserts the documents together.
func (s *Store) AddBatch(ctx context.Context, items []memory.AddItem) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	ids := make([]string, len(items))
	docs := make([]chromem.Document, len(items))
	for i, item := range items {
		ids[i] = uuid.NewString()
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   item.Text,
			Embedding: vectors[i],
			Metadata:  encodePayload(item.Payload),
		}
	}
	if err := s.col.AddDocuments(ctx, docs, 4); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}

	s.mu.Lock()
	for i, item := range items {
		s.owners[ids[i]] = item.Payload.UserID
		s.order = append(s.order, ids[i])
	}
	s.mu.Unlock()

	log.Printf("[CHROMEM] Stored %d memories in batch", len(items))
	return ids, nil
}

// Search returns up to topK nearest documents in scope.
func (s *Store) Search(ctx context.Context, query string, topK int, userID string) ([]memory.SearchHit, error) {
	// chromem rejects nResults above the candidate count, so clamp first.
	limit := topK
	if n := s.countInScope(userID); n < limit {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var where map[string]string
	if userID != "" {
		where = map[string]string{"user_id": userID}
	}

	results, err := s.col.QueryEmbedding(ctx, vec, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]memory.SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, memory.SearchHit{
			ID:         r.ID,
			Similarity: float64(r.Similarity),
			Payload:    decodePayload(r.Content, r.Metadata),
		})
	}
	return hits, nil
}

// Update replaces a document's text in place, preserving created_at,
// importance, and ownership.
func (s *Store) Update(ctx context.Context, id string, newText string, userID string) error {
	if !s.inScope(id, userID) {
		return memory.ErrNotFound
	}

	doc, err := s.col.GetByID(ctx, id)
	if err != nil {
		return memory.ErrNotFound
	}

	vec, err := s.embedder.Embed(ctx, newText)
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}

	// chromem has no in-place update; replace the document under the
	// same id with the stored metadata carried over.
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	if err := s.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   newText,
		Embedding: vec,
		Metadata:  doc.Metadata,
	}); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}

	log.Printf("[CHROMEM] Updated memory id=%s", id)
	return nil
}

// GetAll lists documents in scope, in insertion order, bounded by the page
// size.
func (s *Store) GetAll(ctx context.Context, userID string) ([]memory.StoredMemory, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if userID == "" || s.owners[id] == userID {
			ids = append(ids, id)
		}
		if len(ids) >= pageSize {
			break
		}
	}
	s.mu.RUnlock()

	out := make([]memory.StoredMemory, 0, len(ids))
	for _, id := range ids {
		doc, err := s.col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, memory.StoredMemory{
			ID:      id,
			Payload: decodePayload(doc.Content, doc.Metadata),
		})
	}
	return out, nil
}

// Delete removes a document. Returns false if the id is unknown within the
// tenant scope.
func (s *Store) Delete(ctx context.Context, id string, userID string) (bool, error) {
	if !s.inScope(id, userID) {
		return false, nil
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}

	s.mu.Lock()
	delete(s.owners, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	log.Printf("[CHROMEM] Deleted memory id=%s", id)
	return true, nil
}

func (s *Store) countInScope(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID == "" {
		return len(s.owners)
	}
	n := 0
	for _, owner := range s.owners {
		if owner == userID {
			n++
		}
	}
	return n
}

func (s *Store) inScope(id, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[id]
	return ok && (userID == "" || owner == userID)
}

// encodePayload flattens a payload into chromem's string metadata.
func encodePayload(p memory.Payload) map[string]string {
	meta := map[string]string{}
	if p.UserID != "" {
		meta["user_id"] = p.UserID
	}
	if !p.CreatedAt.IsZero() {
		meta["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.Importance != 0 {
		meta["importance"] = strconv.FormatFloat(p.Importance, 'f', -1, 64)
	}
	if p.Summary != "" {
		meta["summary"] = p.Summary
	}
	if p.RawText != "" {
		meta["raw_text"] = p.RawText
	}
	if len(p.RawConversation) > 0 {
		if raw, err := json.Marshal(p.RawConversation); err == nil {
			meta["raw_conversation"] = string(raw)
		}
	}
	for k, v := range p.Metadata {
		meta["x_"+k] = v
	}
	return meta
}

// decodePayload is the inverse of encodePayload. A malformed created_at is
// reported and leaves the memory untimed rather than dropping it.
func decodePayload(content string, meta map[string]string) memory.Payload {
	p := memory.Payload{
		Text:    content,
		UserID:  meta["user_id"],
		Summary: meta["summary"],
		RawText: meta["raw_text"],
	}
	if raw := meta["created_at"]; raw != "" {
		created, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			log.Printf("[CHROMEM] Malformed created_at %q, treating memory as untimed: %v", raw, err)
		} else {
			p.CreatedAt = created
		}
	}
	if raw := meta["importance"]; raw != "" {
		if importance, err := strconv.ParseFloat(raw, 64); err == nil {
			p.Importance = importance
		}
	}
	if raw := meta["raw_conversation"]; raw != "" {
		var turns []memory.Turn
		if err := json.Unmarshal([]byte(raw), &turns); err == nil {
			p.RawConversation = turns
		}
	}
	for k, v := range meta {
		if len(k) > 2 && k[:2] == "x_" {
			if p.Metadata == nil {
				p.Metadata = map[string]string{}
			}
			p.Metadata[k[2:]] = v
		}
	}
	return p
}
