package ssdp

import (
	"container/ring"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sync"
	"time"
)

const debugEventBuffer = 200

// DebugServer exposes a read-only view of an Engine's registry and event
// traffic over plain net/http — never part of the protocol surface
// itself, just an operator aid. It owns no listener; callers wire its
// routes into their own mux the way upnp.Server wires ServeDebugIndex.
type DebugServer struct {
	engine *Engine

	mu      sync.Mutex
	clients map[chan string]bool
	ring    *ring.Ring
}

// NewDebugServer subscribes to every topic on engine's bus so its SSE
// feed reflects live traffic, and returns a DebugServer ready to have its
// routes installed.
func NewDebugServer(engine *Engine) *DebugServer {
	d := &DebugServer{
		engine:  engine,
		clients: make(map[chan string]bool),
		ring:    ring.New(debugEventBuffer),
	}
	for _, topic := range []string{TopicNewDevice, TopicRemovedDevice, TopicDatagramReceived, TopicLog} {
		t := topic
		engine.Bus().Subscribe(t, func(payload ...any) { d.record(t, payload) })
	}
	return d
}

type debugEvent struct {
	Time  time.Time `json:"time"`
	Topic string    `json:"topic"`
	Data  []any     `json:"data"`
}

func (d *DebugServer) record(topic string, payload []any) {
	ev := debugEvent{Time: time.Now(), Topic: topic, Data: payload}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}

	d.mu.Lock()
	d.ring.Value = string(b)
	d.ring = d.ring.Next()
	for ch := range d.clients {
		select {
		case ch <- string(b):
		default:
		}
	}
	d.mu.Unlock()
}

// InstallRoutes wires the index, registry snapshot and SSE event feed into
// mux under prefix (e.g. "/ssdp/debug").
func (d *DebugServer) InstallRoutes(mux *http.ServeMux, prefix string) {
	mux.HandleFunc(prefix, d.serveIndex)
	mux.HandleFunc(prefix+"/registry", d.serveRegistry)
	mux.HandleFunc(prefix+"/events", d.serveEvents)
}

func (d *DebugServer) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>SSDP peer debug</title>
  <style>
    body { font-family: sans-serif; margin: 2em; }
    h1 { border-bottom: 1px solid #ccc; }
    pre { background: #f5f5f5; padding: 1em; overflow-x: auto; }
  </style>
</head>
<body>
  <h1>ssdp peer</h1>
  <p>%d known record(s). <a href="%s/registry">registry snapshot (JSON)</a> · <a href="%s/events">live events (SSE)</a></p>
</body>
</html>`, len(d.engine.Snapshot()), html.EscapeString(r.URL.Path), html.EscapeString(r.URL.Path))
}

func (d *DebugServer) serveRegistry(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.engine.Snapshot())
}

func (d *DebugServer) serveEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, 32)
	d.mu.Lock()
	d.clients[ch] = true
	d.ring.Do(func(v any) {
		if v != nil {
			fmt.Fprintf(w, "data: %s\n\n", v.(string))
		}
	})
	d.mu.Unlock()
	flusher.Flush()

	for {
		select {
		case msg := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			d.mu.Lock()
			delete(d.clients, ch)
			d.mu.Unlock()
			return
		}
	}
}
