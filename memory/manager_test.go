package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/memkit/memory"
)

// fakeStore is an in-memory Store with scripted search results, so tests
// control the similarity the dedup decision sees.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	order    []string
	payloads map[string]memory.Payload

	searchHits []memory.SearchHit
	searchErr  error
	addErr     error
	updateErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{payloads: make(map[string]memory.Payload)}
}

func (s *fakeStore) Add(ctx context.Context, text string, payload memory.Payload) (string, error) {
	if s.addErr != nil {
		return "", s.addErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("mem-%d", s.nextID)
	payload.Text = text
	s.payloads[id] = payload
	s.order = append(s.order, id)
	return id, nil
}

func (s *fakeStore) AddBatch(ctx context.Context, items []memory.AddItem) ([]string, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		id, err := s.Add(ctx, item.Text, item.Payload)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *fakeStore) Search(ctx context.Context, query string, topK int, userID string) ([]memory.SearchHit, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var out []memory.SearchHit
	for _, hit := range s.searchHits {
		if userID != "" && hit.Payload.UserID != userID {
			continue
		}
		out = append(out, hit)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) Update(ctx context.Context, id, newText, userID string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[id]
	if !ok || (userID != "" && p.UserID != userID) {
		return memory.ErrNotFound
	}
	p.Text = newText
	s.payloads[id] = p
	return nil
}

func (s *fakeStore) GetAll(ctx context.Context, userID string) ([]memory.StoredMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.StoredMemory
	for _, id := range s.order {
		p := s.payloads[id]
		if userID != "" && p.UserID != userID {
			continue
		}
		out = append(out, memory.StoredMemory{ID: id, Payload: p})
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[id]
	if !ok || (userID != "" && p.UserID != userID) {
		return false, nil
	}
	delete(s.payloads, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

type summarizerFunc func(ctx context.Context, input memory.Input) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, input memory.Input) (string, error) {
	return f(ctx, input)
}

type mergerFunc func(ctx context.Context, oldText, newText string) (string, error)

func (f mergerFunc) Merge(ctx context.Context, oldText, newText string) (string, error) {
	return f(ctx, oldText, newText)
}

type builderFunc func(ctx context.Context, texts []string) (string, error)

func (f builderFunc) BuildContext(ctx context.Context, texts []string) (string, error) {
	return f(ctx, texts)
}

// recordingEvents captures event names for assertions.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEvents) Log(event string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestManagerCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts when the store is empty", func(t *testing.T) {
		store := newFakeStore()
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		result, err := mgr.Create(ctx, memory.TextInput("User lives in Mumbai"), nil, "u1")

		require.NoError(t, err)
		assert.Equal(t, memory.StatusCreated, result.Status)
		assert.NotEmpty(t, result.ID)
		assert.Equal(t, "User lives in Mumbai", result.Summary)

		p := store.payloads[result.ID]
		assert.Equal(t, "u1", p.UserID)
		assert.Equal(t, 1.0, p.Importance)
		assert.Equal(t, fixedNow, p.CreatedAt)
		assert.Equal(t, "User lives in Mumbai", p.RawText)
	})

	t.Run("merges above the threshold into the same id", func(t *testing.T) {
		store := newFakeStore()
		existingID, err := store.Add(ctx, "User lives in Mumbai", memory.Payload{
			UserID: "u1", CreatedAt: fixedNow.Add(-time.Hour),
		})
		require.NoError(t, err)
		store.searchHits = []memory.SearchHit{{
			ID:         existingID,
			Similarity: 0.92,
			Payload:    store.payloads[existingID],
		}}

		merger := mergerFunc(func(ctx context.Context, oldText, newText string) (string, error) {
			return oldText + "; " + newText, nil
		})
		mgr := memory.NewManager(store, &memory.Config{Merger: merger, Now: fixedClock})

		result, err := mgr.Create(ctx, memory.TextInput("User lives in Mumbai, near Bandra"), nil, "u1")

		require.NoError(t, err)
		assert.Equal(t, memory.StatusMerged, result.Status)
		assert.Equal(t, existingID, result.ID)
		assert.Equal(t, "User lives in Mumbai", result.Old)
		assert.Equal(t, "User lives in Mumbai, near Bandra", result.New)
		assert.Equal(t, "User lives in Mumbai; User lives in Mumbai, near Bandra", result.Merged)

		p := store.payloads[existingID]
		assert.Equal(t, result.Merged, p.Text)
		// Merging never rewrites the creation time.
		assert.Equal(t, fixedNow.Add(-time.Hour), p.CreatedAt)
		assert.Len(t, store.order, 1, "no new memory should be inserted")
	})

	t.Run("similarity exactly at the threshold creates", func(t *testing.T) {
		store := newFakeStore()
		store.searchHits = []memory.SearchHit{{
			ID:         "existing",
			Similarity: 0.8,
			Payload:    memory.Payload{UserID: "u1"},
		}}
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		result, err := mgr.Create(ctx, memory.TextInput("borderline duplicate"), nil, "u1")

		require.NoError(t, err)
		assert.Equal(t, memory.StatusCreated, result.Status)
		assert.NotEqual(t, "existing", result.ID)
	})

	t.Run("merger failure falls back to the new text", func(t *testing.T) {
		store := newFakeStore()
		existingID, err := store.Add(ctx, "old fact", memory.Payload{UserID: "u1"})
		require.NoError(t, err)
		store.searchHits = []memory.SearchHit{{
			ID: existingID, Similarity: 0.95, Payload: store.payloads[existingID],
		}}

		events := &recordingEvents{}
		merger := mergerFunc(func(ctx context.Context, oldText, newText string) (string, error) {
			return "", errors.New("model overloaded")
		})
		mgr := memory.NewManager(store, &memory.Config{
			Merger: merger, Events: events, Now: fixedClock,
		})

		result, err := mgr.Create(ctx, memory.TextInput("new fact"), nil, "u1")

		require.NoError(t, err)
		assert.Equal(t, memory.StatusMerged, result.Status)
		assert.Equal(t, "new fact", result.Merged)
		assert.Equal(t, "new fact", store.payloads[existingID].Text)
		assert.True(t, events.has("merge_fallback"))
	})

	t.Run("summarizer output becomes the stored text", func(t *testing.T) {
		store := newFakeStore()
		summarizer := summarizerFunc(func(ctx context.Context, input memory.Input) (string, error) {
			return "User prefers vegetarian food", nil
		})
		mgr := memory.NewManager(store, &memory.Config{Summarizer: summarizer, Now: fixedClock})

		result, err := mgr.Create(ctx, memory.ConversationInput([]memory.Turn{
			{Role: "user", Content: "I don't eat meat"},
		}), nil, "u1")

		require.NoError(t, err)
		assert.Equal(t, "User prefers vegetarian food", result.Summary)
		p := store.payloads[result.ID]
		assert.Equal(t, "User prefers vegetarian food", p.Text)
		assert.Equal(t, []memory.Turn{{Role: "user", Content: "I don't eat meat"}}, p.RawConversation)
		assert.Empty(t, p.RawText)
	})

	t.Run("summarizer failure falls back to the transcript", func(t *testing.T) {
		store := newFakeStore()
		events := &recordingEvents{}
		summarizer := summarizerFunc(func(ctx context.Context, input memory.Input) (string, error) {
			return "", errors.New("timeout")
		})
		mgr := memory.NewManager(store, &memory.Config{
			Summarizer: summarizer, Events: events, Now: fixedClock,
		})

		result, err := mgr.Create(ctx, memory.TextInput("User works as a data engineer"), nil, "u1")

		require.NoError(t, err)
		assert.Equal(t, "User works as a data engineer", result.Summary)
		assert.True(t, events.has("summarize_fallback"))
	})

	t.Run("rejects invalid input before touching the store", func(t *testing.T) {
		store := newFakeStore()
		store.searchErr = errors.New("must not be called")
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		_, err := mgr.Create(ctx, memory.Input{}, nil, "u1")

		require.Error(t, err)
		assert.True(t, memory.IsValidation(err))
	})

	t.Run("store failure is fatal", func(t *testing.T) {
		store := newFakeStore()
		store.searchErr = errors.New("connection refused")
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		_, err := mgr.Create(ctx, memory.TextInput("fact"), nil, "u1")

		require.Error(t, err)
		assert.False(t, memory.IsValidation(err))
	})
}

func TestManagerCreateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts every item in order", func(t *testing.T) {
		store := newFakeStore()
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		inputs := []memory.Input{
			memory.TextInput("fact one"),
			memory.TextInput("fact two"),
			memory.TextInput("fact three"),
		}
		results, err := mgr.CreateBatch(ctx, inputs, nil, []string{"u1", "u1", "u2"})

		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, r := range results {
			assert.Equal(t, memory.StatusCreated, r.Status)
			assert.Equal(t, inputs[i].Text, r.Summary)
		}
		assert.Equal(t, "u2", store.payloads[results[2].ID].UserID)
	})

	t.Run("one item's summarizer failure does not abort the batch", func(t *testing.T) {
		store := newFakeStore()
		summarizer := summarizerFunc(func(ctx context.Context, input memory.Input) (string, error) {
			if strings.Contains(input.Text, "poison") {
				return "", errors.New("refused")
			}
			return "summary: " + input.Text, nil
		})
		mgr := memory.NewManager(store, &memory.Config{Summarizer: summarizer, Now: fixedClock})

		results, err := mgr.CreateBatch(ctx, []memory.Input{
			memory.TextInput("fine"),
			memory.TextInput("poison pill"),
			memory.TextInput("also fine"),
		}, nil, nil)

		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "summary: fine", results[0].Summary)
		assert.Equal(t, "poison pill", results[1].Summary)
		assert.Equal(t, "summary: also fine", results[2].Summary)
	})

	t.Run("rejects mismatched slice lengths", func(t *testing.T) {
		mgr := memory.NewManager(newFakeStore(), &memory.Config{Now: fixedClock})

		_, err := mgr.CreateBatch(ctx, []memory.Input{memory.TextInput("x")}, nil, []string{"a", "b"})
		require.Error(t, err)
		assert.True(t, memory.IsValidation(err))

		_, err = mgr.CreateBatch(ctx, []memory.Input{memory.TextInput("x")},
			[]map[string]string{{"k": "v"}, {"k": "v"}}, nil)
		require.Error(t, err)
		assert.True(t, memory.IsValidation(err))
	})

	t.Run("rejects the whole batch on any invalid item", func(t *testing.T) {
		store := newFakeStore()
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		_, err := mgr.CreateBatch(ctx, []memory.Input{
			memory.TextInput("ok"),
			{},
		}, nil, nil)

		require.Error(t, err)
		assert.True(t, memory.IsValidation(err))
		assert.Empty(t, store.order, "nothing should be written")
	})
}

func TestManagerQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("reranks by hybrid score, not raw similarity", func(t *testing.T) {
		store := newFakeStore()
		store.searchHits = []memory.SearchHit{
			{ID: "stale", Similarity: 0.85, Payload: memory.Payload{
				Text: "old address", UserID: "u1",
				CreatedAt: fixedNow.Add(-24 * 90 * time.Hour), Importance: 1.0}},
			{ID: "fresh", Similarity: 0.80, Payload: memory.Payload{
				Text: "current address", UserID: "u1",
				CreatedAt: fixedNow.Add(-time.Hour), Importance: 1.0}},
		}
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		result, err := mgr.Query(ctx, "where does the user live?", 5, "u1")

		require.NoError(t, err)
		require.Len(t, result.Memories, 2)
		assert.Equal(t, "fresh", result.Memories[0].ID)
		assert.Equal(t, "stale", result.Memories[1].ID)
		assert.NotZero(t, result.Memories[0].DecayedScore)
		assert.NotZero(t, result.Memories[0].FinalScore)
	})

	t.Run("context falls back to joined top texts", func(t *testing.T) {
		store := newFakeStore()
		store.searchHits = []memory.SearchHit{
			{ID: "a", Similarity: 0.9, Payload: memory.Payload{Text: "fact a", UserID: "u1"}},
			{ID: "b", Similarity: 0.8, Payload: memory.Payload{Text: "fact b", UserID: "u1"}},
		}
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		result, err := mgr.Query(ctx, "facts?", 5, "u1")

		require.NoError(t, err)
		assert.Equal(t, "fact a\nfact b", result.ContextSummary)
	})

	t.Run("context builder output wins when it succeeds", func(t *testing.T) {
		store := newFakeStore()
		store.searchHits = []memory.SearchHit{
			{ID: "a", Similarity: 0.9, Payload: memory.Payload{Text: "fact a", UserID: "u1"}},
		}
		builder := builderFunc(func(ctx context.Context, texts []string) (string, error) {
			return "a tidy paragraph", nil
		})
		mgr := memory.NewManager(store, &memory.Config{ContextBuilder: builder, Now: fixedClock})

		result, err := mgr.Query(ctx, "facts?", 5, "u1")

		require.NoError(t, err)
		assert.Equal(t, "a tidy paragraph", result.ContextSummary)
	})

	t.Run("context builder failure degrades to joined texts", func(t *testing.T) {
		store := newFakeStore()
		store.searchHits = []memory.SearchHit{
			{ID: "a", Similarity: 0.9, Payload: memory.Payload{Text: "fact a", UserID: "u1"}},
		}
		events := &recordingEvents{}
		builder := builderFunc(func(ctx context.Context, texts []string) (string, error) {
			return "", errors.New("overloaded")
		})
		mgr := memory.NewManager(store, &memory.Config{
			ContextBuilder: builder, Events: events, Now: fixedClock,
		})

		result, err := mgr.Query(ctx, "facts?", 5, "u1")

		require.NoError(t, err)
		assert.Equal(t, "fact a", result.ContextSummary)
		assert.True(t, events.has("context_fallback"))
	})

	t.Run("no results yields empty context", func(t *testing.T) {
		mgr := memory.NewManager(newFakeStore(), &memory.Config{Now: fixedClock})

		result, err := mgr.Query(ctx, "anything", 5, "u1")

		require.NoError(t, err)
		assert.Empty(t, result.Memories)
		assert.Empty(t, result.ContextSummary)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		mgr := memory.NewManager(newFakeStore(), &memory.Config{Now: fixedClock})

		_, err := mgr.Query(ctx, "", 5, "u1")

		require.Error(t, err)
		assert.True(t, memory.IsValidation(err))
	})
}

func TestManagerUpdateDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("update rewrites text in place", func(t *testing.T) {
		store := newFakeStore()
		id, err := store.Add(ctx, "old text", memory.Payload{UserID: "u1"})
		require.NoError(t, err)
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		require.NoError(t, mgr.Update(ctx, id, "new text", "u1"))
		assert.Equal(t, "new text", store.payloads[id].Text)
	})

	t.Run("update rejects empty text", func(t *testing.T) {
		mgr := memory.NewManager(newFakeStore(), &memory.Config{Now: fixedClock})

		err := mgr.Update(ctx, "mem-1", "", "u1")

		require.Error(t, err)
		assert.True(t, memory.IsValidation(err))
	})

	t.Run("update of unknown id is ErrNotFound", func(t *testing.T) {
		mgr := memory.NewManager(newFakeStore(), &memory.Config{Now: fixedClock})

		err := mgr.Update(ctx, "missing", "text", "u1")

		assert.ErrorIs(t, err, memory.ErrNotFound)
	})

	t.Run("update outside the tenant scope is ErrNotFound", func(t *testing.T) {
		store := newFakeStore()
		id, err := store.Add(ctx, "private", memory.Payload{UserID: "u1"})
		require.NoError(t, err)
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		assert.ErrorIs(t, mgr.Update(ctx, id, "hijacked", "u2"), memory.ErrNotFound)
		assert.Equal(t, "private", store.payloads[id].Text)
	})

	t.Run("delete reports found", func(t *testing.T) {
		store := newFakeStore()
		id, err := store.Add(ctx, "text", memory.Payload{UserID: "u1"})
		require.NoError(t, err)
		mgr := memory.NewManager(store, &memory.Config{Now: fixedClock})

		found, err := mgr.Delete(ctx, id, "u1")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = mgr.Delete(ctx, id, "u1")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestManagerListAndHealth(t *testing.T) {
	ctx := context.Background()

	store := newFakeStore()
	_, err := store.Add(ctx, "a", memory.Payload{UserID: "u1", CreatedAt: fixedNow, Importance: 1.0})
	require.NoError(t, err)
	_, err = store.Add(ctx, "b", memory.Payload{UserID: "u2", CreatedAt: fixedNow, Importance: 1.0})
	require.NoError(t, err)

	events := &recordingEvents{}
	mgr := memory.NewManager(store, &memory.Config{Events: events, Now: fixedClock})

	t.Run("list is tenant-scoped", func(t *testing.T) {
		scoped, err := mgr.List(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, scoped, 1)

		global, err := mgr.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, global, 2)
	})

	t.Run("health matches the scoped listing", func(t *testing.T) {
		h, err := mgr.Health(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, h.MemoryCount)
		assert.InDelta(t, 1.0, h.AverageImportance, 1e-9)
		assert.True(t, events.has("health_snapshot"))
	})
}
