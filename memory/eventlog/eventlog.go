// Package eventlog provides append-only, best-effort sinks for memory
// lifecycle events: a JSONL file logger for audit and a broadcaster used
// to stream events to live subscribers. Failures here never propagate to
// the pipelines that emit the events.
package eventlog

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/becomeliminal/memkit/memory"
)

// Event is one logged lifecycle event.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// FileLogger appends events as JSON lines to a single file.
type FileLogger struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFile opens (or creates) the JSONL event log at path, creating parent
// directories as needed.
func NewFile(path string) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{path: path, f: f}, nil
}

// Log appends one event line. Write errors are logged and swallowed.
func (l *FileLogger) Log(event string, data map[string]any) {
	entry := Event{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Data:      data,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[EVENTLOG] Dropping unserializable event %q: %v", event, err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		log.Printf("[EVENTLOG] Write to %s failed: %v", l.path, err)
	}
}

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Broadcaster fans events out to subscribers. Slow subscribers drop events
// rather than blocking the pipelines.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBroadcaster returns a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; the channel is closed on cancel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Log delivers the event to every subscriber, dropping it for any whose
// buffer is full.
func (b *Broadcaster) Log(event string, data map[string]any) {
	entry := Event{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Data:      data,
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Multi duplicates events to several loggers.
type Multi struct {
	loggers []memory.EventLogger
}

// NewMulti combines loggers into one sink. Nil entries are skipped.
func NewMulti(loggers ...memory.EventLogger) *Multi {
	out := make([]memory.EventLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return &Multi{loggers: out}
}

// Log forwards the event to every combined logger.
func (m *Multi) Log(event string, data map[string]any) {
	for _, l := range m.loggers {
		l.Log(event, data)
	}
}
