// Package sse implements a Server-Sent Events broker streaming file changes
// and command outcomes to REST clients.
package sse

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Event types.
const (
	TypeFileCreated     = "file.created"
	TypeFileUpdated     = "file.updated"
	TypeFileDeleted     = "file.deleted"
	TypeIndexUpdated    = "index.updated"
	TypeCommandFinished = "command.finished"
)

var fileEventTypes = map[string]string{
	"created": TypeFileCreated,
	"updated": TypeFileUpdated,
	"deleted": TypeFileDeleted,
}

const (
	clientBuffer      = 64
	heartbeatInterval = 25 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans events out to the connected SSE clients.
//
// All state lives in hub and is only touched by the loop goroutine; public
// methods hand it closures over ops.
type Broker struct {
	ops  chan func(*hub)
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

type hub struct {
	clients map[chan []byte]struct{}
	seq     uint64

	// index.updated coalescing.
	window    time.Duration
	lastIndex time.Time
	pending   int
	timer     *time.Timer
	fire      <-chan time.Time
}

// NewBroker starts a broker. index.updated is sent at most once per
// indexWindow; file changes arriving inside the window are reported by a
// single trailing event at its end.
func NewBroker(indexWindow time.Duration) *Broker {
	if indexWindow <= 0 {
		indexWindow = 2 * time.Second
	}
	b := &Broker{
		ops:  make(chan func(*hub), 256),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	h := &hub{clients: map[chan []byte]struct{}{}, window: indexWindow}
	go b.loop(h)
	return b
}

func (b *Broker) loop(h *hub) {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			if h.timer != nil {
				h.timer.Stop()
			}
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		case <-h.fire:
			h.fire = nil
			h.flushIndex(time.Now())
		}
	}
}

// do runs op on the loop goroutine. It reports false once the broker is
// closed.
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

// call runs op and waits for it to finish.
func (b *Broker) call(op func(*hub)) bool {
	finished := make(chan struct{})
	if !b.do(func(h *hub) { op(h); close(finished) }) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-b.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

func (h *hub) send(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	h.seq++
	frame := make([]byte, 0, len(payload)+64)
	frame = append(frame, "id: "...)
	frame = strconv.AppendUint(frame, h.seq, 10)
	frame = append(frame, "\nevent: "...)
	frame = append(frame, event.Type...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)

	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
			// Client is behind; it misses this event.
		}
	}
}

// fileChanged sends the file event and schedules index.updated.
func (h *hub) fileChanged(typ, path string, now time.Time) {
	h.send(Event{Type: typ, Data: map[string]string{"path": path}})
	h.pending++
	if now.Sub(h.lastIndex) >= h.window {
		h.flushIndex(now)
		return
	}
	if h.fire == nil {
		wait := h.window - now.Sub(h.lastIndex)
		if h.timer == nil {
			h.timer = time.NewTimer(wait)
		} else {
			h.timer.Reset(wait)
		}
		h.fire = h.timer.C
	}
}

func (h *hub) flushIndex(now time.Time) {
	if h.pending == 0 {
		return
	}
	h.send(Event{Type: TypeIndexUpdated, Data: map[string]int{"changes": h.pending}})
	h.pending = 0
	h.lastIndex = now
}

// Close stops the broker and closes every client channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.quit) })
	<-b.done
}

// Subscribe registers a client. The returned channel receives encoded SSE
// frames and is closed on Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !b.call(func(h *hub) { h.clients[ch] = struct{}{} }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.call(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	var n int
	if !b.call(func(h *hub) { n = len(h.clients) }) {
		return 0
	}
	return n
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.do(func(h *hub) { h.send(event) })
}

// PublishCommand broadcasts the outcome of a command.
func (b *Broker) PublishCommand(status any) {
	b.Publish(Event{Type: TypeCommandFinished, Data: status})
}

// PublishFileEvent publishes a file change reported by the index watcher.
// kind is one of created, updated or deleted; anything else is ignored.
func (b *Broker) PublishFileEvent(kind, path string) {
	typ, ok := fileEventTypes[kind]
	if !ok {
		return
	}
	now := time.Now()
	b.do(func(h *hub) { h.fileChanged(typ, path, now) })
}

// ServeHTTP streams events to one client until it disconnects or the broker
// closes. A comment line is sent every heartbeatInterval so proxies keep the
// connection open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
		}
		flusher.Flush()
	}
}
