// Package sse streams build progress to preview clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event is one message broadcast to every client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Build event types.
const (
	BuildStarted   = "build.started"
	BuildSucceeded = "build.succeeded"
	BuildFailed    = "build.failed"
	// Reload asks pages to refresh. It follows a successful build at most
	// once per reload interval.
	Reload = "reload"
)

const (
	clientBuffer     = 64
	defaultHeartbeat = 15 * time.Second
)

// hub is the state owned by the broker loop.
type hub struct {
	clients    map[chan []byte]struct{}
	lastBuild  []byte
	lastReload time.Time
}

func (h *hub) broadcast(msg []byte) {
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// slow client; drop
		}
	}
}

// Broker fans events out to subscribed clients. New clients first receive
// the most recent build event so a page opened mid-build knows the state.
//
// All state lives in a hub owned by one goroutine; public methods send it
// closures over ops.
type Broker struct {
	reloadMin time.Duration
	heartbeat time.Duration

	ops     chan func(*hub)
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewBroker creates a broker that emits at most one reload per interval.
func NewBroker(reloadInterval time.Duration) *Broker {
	if reloadInterval <= 0 {
		reloadInterval = time.Second
	}
	b := &Broker{
		reloadMin: reloadInterval,
		heartbeat: defaultHeartbeat,
		ops:       make(chan func(*hub)),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.done:
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// do hands op to the loop. It reports false once the broker is closed.
func (b *Broker) do(op func(*hub)) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.ops <- op:
		return true
	case <-b.done:
		return false
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.done) })
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. The channel is
// closed when the client unsubscribes or the broker closes.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	ok := b.do(func(h *hub) {
		h.clients[ch] = struct{}{}
		if h.lastBuild != nil {
			ch <- h.lastBuild
		}
	})
	if !ok {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.do(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.do(func(h *hub) { resp <- len(h.clients) }) {
		return 0
	}
	return <-resp
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	msg, err := encode(event)
	if err != nil {
		return
	}
	b.do(func(h *hub) { h.broadcast(msg) })
}

// PublishBuild publishes a build lifecycle event and remembers it for
// clients that connect later. A BuildSucceeded event is followed by a
// throttled Reload.
func (b *Broker) PublishBuild(kind string, data any) {
	msg, err := encode(Event{Type: kind, Data: data})
	if err != nil {
		return
	}
	reload, _ := encode(Event{Type: Reload, Data: map[string]string{}})

	b.do(func(h *hub) {
		h.lastBuild = msg
		h.broadcast(msg)
		if kind != BuildSucceeded {
			return
		}
		if now := time.Now(); now.Sub(h.lastReload) >= b.reloadMin {
			h.lastReload = now
			h.broadcast(reload)
		}
	})
}

func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload), nil
}

// ServeHTTP is the SSE endpoint handler. Idle streams get a comment line
// every heartbeat interval so proxies keep them open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
