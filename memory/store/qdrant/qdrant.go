// Package qdrant backs the memory Store with a Qdrant collection over the
// official gRPC client. This is the production backend: persistent,
// server-side filtered, and shared between processes.
//
// All tenants live in one collection, disambiguated by a user_id payload
// field; an empty user id scopes nothing and searches globally.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/becomeliminal/memkit/memory"
)

// DefaultCollection is the collection name when none is configured.
const DefaultCollection = "memories"

// pageSize bounds GetAll listings; pagination beyond it is the caller's
// concern.
const pageSize = 100

// Config configures the Qdrant store.
type Config struct {
	// Host and Port locate the Qdrant gRPC endpoint (default
	// localhost:6334).
	Host string
	Port int

	// APIKey and UseTLS configure access to managed deployments.
	APIKey string
	UseTLS bool

	// Collection is the namespace holding all memories.
	Collection string

	// GrpcOptions are extra dial options (message limits, interceptors).
	GrpcOptions []grpc.DialOption
}

// Store implements memory.Store on a Qdrant collection.
type Store struct {
	client     *qdrant.Client
	embedder   memory.Embedder
	collection string
}

// New connects to Qdrant and ensures the collection exists with the
// embedder's dimension and cosine distance.
func New(ctx context.Context, embedder memory.Embedder, cfg Config) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		APIKey:      cfg.APIKey,
		UseTLS:      cfg.UseTLS,
		GrpcOptions: cfg.GrpcOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	s := &Store{
		client:     client,
		embedder:   embedder,
		collection: cfg.Collection,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.embedder.Dimensions()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	log.Printf("[QDRANT] Created collection %q dim=%d", s.collection, s.embedder.Dimensions())
	return nil
}

// Add embeds text and upserts a new point.
func (s *Store) Add(ctx context.Context, text string, payload memory.Payload) (string, error) {
	ids, err := s.AddBatch(ctx, []memory.AddItem{{Text: text, Payload: payload}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddBatch embeds all texts in one call and upserts the points together.
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
	points := make([]*qdrant.PointStruct, len(items))
	for i, item := range items {
		ids[i] = uuid.NewString()
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(ids[i]),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(encodePayload(item.Text, item.Payload)),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert points: %w", err)
	}

	log.Printf("[QDRANT] Stored %d memories", len(items))
	return ids, nil
}

// Search returns up to topK nearest points in scope.
func (s *Store) Search(ctx context.Context, query string, topK int, userID string) ([]memory.SearchHit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Filter:         tenantFilter(userID),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	hits := make([]memory.SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, memory.SearchHit{
			ID:         p.GetId().GetUuid(),
			Similarity: float64(p.GetScore()),
			Payload:    decodePayload(p.GetPayload()),
		})
	}
	return hits, nil
}

// Update replaces a point's text, re-embedding it and preserving every
// other payload field.
func (s *Store) Update(ctx context.Context, id string, newText string, userID string) error {
	existing, err := s.getInScope(ctx, id, userID)
	if err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, newText)
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}

	payload := decodePayload(existing.GetPayload())
	payload.Text = newText

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(encodePayload(newText, payload)),
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}

	log.Printf("[QDRANT] Updated memory id=%s", id)
	return nil
}

// GetAll scrolls points in scope, bounded by the page size.
func (s *Store) GetAll(ctx context.Context, userID string) ([]memory.StoredMemory, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(pageSize)),
		Filter:         tenantFilter(userID),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll points: %w", err)
	}

	out := make([]memory.StoredMemory, 0, len(points))
	for _, p := range points {
		out = append(out, memory.StoredMemory{
			ID:      p.GetId().GetUuid(),
			Payload: decodePayload(p.GetPayload()),
		})
	}
	return out, nil
}

// Delete removes a point. Returns false when the id is unknown within the
// tenant scope.
func (s *Store) Delete(ctx context.Context, id string, userID string) (bool, error) {
	if _, err := s.getInScope(ctx, id, userID); err != nil {
		if err == memory.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return false, fmt.Errorf("delete point: %w", err)
	}

	log.Printf("[QDRANT] Deleted memory id=%s", id)
	return true, nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// getInScope fetches a point and enforces tenant ownership.
func (s *Store) getInScope(ctx context.Context, id, userID string) (*qdrant.RetrievedPoint, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get point: %w", err)
	}
	if len(points) == 0 {
		return nil, memory.ErrNotFound
	}
	p := points[0]
	if userID != "" && p.GetPayload()["user_id"].GetStringValue() != userID {
		return nil, memory.ErrNotFound
	}
	return p, nil
}

func tenantFilter(userID string) *qdrant.Filter {
	if userID == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("user_id", userID)},
	}
}

// encodePayload flattens a payload into Qdrant payload values.
func encodePayload(text string, p memory.Payload) map[string]any {
	out := map[string]any{"text": text}
	if p.UserID != "" {
		out["user_id"] = p.UserID
	}
	if !p.CreatedAt.IsZero() {
		out["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.Importance != 0 {
		out["importance"] = p.Importance
	}
	if p.Summary != "" {
		out["summary"] = p.Summary
	}
	if p.RawText != "" {
		out["raw_text"] = p.RawText
	}
	if len(p.RawConversation) > 0 {
		if raw, err := json.Marshal(p.RawConversation); err == nil {
			out["raw_conversation"] = string(raw)
		}
	}
	for k, v := range p.Metadata {
		out["x_"+k] = v
	}
	return out
}

// decodePayload is the inverse of encodePayload. A malformed created_at is
// reported and leaves the memory untimed rather than dropping it.
func decodePayload(values map[string]*qdrant.Value) memory.Payload {
	p := memory.Payload{
		Text:       values["text"].GetStringValue(),
		UserID:     values["user_id"].GetStringValue(),
		Summary:    values["summary"].GetStringValue(),
		RawText:    values["raw_text"].GetStringValue(),
		Importance: values["importance"].GetDoubleValue(),
	}
	if raw := values["created_at"].GetStringValue(); raw != "" {
		created, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			log.Printf("[QDRANT] Malformed created_at %q, treating memory as untimed: %v", raw, err)
		} else {
			p.CreatedAt = created
		}
	}
	if raw := values["raw_conversation"].GetStringValue(); raw != "" {
		var turns []memory.Turn
		if err := json.Unmarshal([]byte(raw), &turns); err == nil {
			p.RawConversation = turns
		}
	}
	for k, v := range values {
		if len(k) > 2 && k[:2] == "x_" {
			if p.Metadata == nil {
				p.Metadata = map[string]string{}
			}
			p.Metadata[k[2:]] = v.GetStringValue()
		}
	}
	return p
}
