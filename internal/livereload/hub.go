// Package livereload notifies connected browsers when build outputs change.
//
// A Hub fans events out to subscribers over buffered channels. Browsers
// subscribe through the server-sent events endpoint served by Handler and
// load the client script served by ScriptHandler; Inject adds that script
// to HTML pages as they are served.
package livereload

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dshills/sitesmith/internal/logging"
)

const (
	// EventsPath is the SSE endpoint the client script connects to.
	EventsPath = "/__sitesmith/events"
	// ScriptPath serves the client script.
	ScriptPath = "/__sitesmith/livereload.js"

	// heartbeatInterval is how often idle streams get a keep-alive comment.
	heartbeatInterval = 15 * time.Second

	defaultBuffer = 16
)

// Kind tells the client how to apply a change.
type Kind string

const (
	// KindReload reloads the page.
	KindReload Kind = "reload"
	// KindCSS swaps stylesheets in place.
	KindCSS Kind = "css"
)

// Event is one change notification.
type Event struct {
	ID    string    `json:"id"`
	Kind  Kind      `json:"kind"`
	Paths []string  `json:"paths,omitempty"`
	Time  time.Time `json:"time"`
}

// KindFor returns KindCSS when every path is a stylesheet and KindReload
// otherwise.
func KindFor(paths []string) Kind {
	if len(paths) == 0 {
		return KindReload
	}
	for _, p := range paths {
		if !strings.EqualFold(path.Ext(p), ".css") {
			return KindReload
		}
	}
	return KindCSS
}

// Hub broadcasts events to every subscriber. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	buffer  int
	closed  bool
	dropped int64

	heartbeat time.Duration
	log       *logging.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHeartbeat sets the keep-alive interval of SSE streams.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hub) {
		h.log = l.WithComponent("livereload")
	}
}

// NewHub creates a hub with no subscribers.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:      make(map[chan Event]struct{}),
		buffer:    defaultBuffer,
		heartbeat: heartbeatInterval,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; it is safe to call more than once. Subscribing to a
// closed hub returns an already closed channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish sends a new event for paths to every subscriber and returns it.
func (h *Hub) Publish(kind Kind, paths []string) Event {
	event := Event{
		ID:    ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Kind:  kind,
		Paths: paths,
		Time:  time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return event
	}
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped++
		}
	}
	h.log.Debug("%s %v to %d clients", kind, paths, len(h.subs))
	return event
}

// Clients returns the number of subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close disconnects every subscriber. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Handler serves the event stream as text/event-stream.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.serveEvents)
}

func (h *Hub) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()
	ctx := r.Context()

	_, _ = fmt.Fprint(w, ":ok\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
			flusher.Flush()

		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}
