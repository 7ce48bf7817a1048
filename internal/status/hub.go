// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Path is the HTTP path of the status feed.
const Path = "/status"

const (
	clientQueue  = 4
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  256,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans snapshots out to websocket clients. Publish never blocks: a slow
// client loses intermediate snapshots.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	latest  []byte
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

// Publish encodes s and queues it for every client.
func (h *Hub) Publish(s Snapshot) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = data
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Clients returns the number of connected monitors.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) subscribe() (chan []byte, []byte) {
	ch := make(chan []byte, clientQueue)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ch] = struct{}{}
	return ch, h.latest
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
}

// ServeHTTP upgrades the request and streams snapshots until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Str("component", "status").Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	ch, latest := h.subscribe()
	defer h.unsubscribe(ch)
	log.Info().Str("component", "status").Str("remote", r.RemoteAddr).Msg("monitor connected")

	// The reader only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(data []byte) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.BinaryMessage, data) == nil
	}
	if latest != nil && !send(latest) {
		return
	}
	for {
		select {
		case <-gone:
			log.Info().Str("component", "status").Str("remote", r.RemoteAddr).Msg("monitor disconnected")
			return
		case <-r.Context().Done():
			return
		case data := <-ch:
			if !send(data) {
				return
			}
		}
	}
}

// Serve runs the status feed on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h *Hub) error {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
