// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package livestatus streams step-by-step simulation telemetry to dashboard
// clients over a websocket. Where a typical websocket client dials out to an
// external server, this package serves one itself, pushing events published
// on the run's event bus.
package livestatus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"thermtank/internal/events"
	"thermtank/pkg/eventbus"
	"thermtank/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboard clients may be served from a different origin (e.g. a
	// local dev server); the rating rig is not a multi-tenant service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server upgrades incoming HTTP connections to websockets and fan-outs
// StepCompleted/RunFailed events from a bus to every connected client.
type Server struct {
	bus *eventbus.Bus
	log *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New wires a Server to the given bus. Call Run to start forwarding events;
// the Server itself satisfies http.Handler and can be attached to a
// RootServer.
func New(bus *eventbus.Bus) *Server {
	return &Server{
		bus:     bus,
		log:     logger.New("LiveStatus"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers it as a subscriber until
// the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Info("dashboard client connected (%d total)", s.clientCount())

	// Drain reads so the client's close frame is observed; the dashboard
	// is a passive consumer and never sends commands.
	go func() {
		defer s.disconnect(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) disconnect(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
	s.log.Info("dashboard client disconnected (%d total)", s.clientCount())
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Run subscribes to the bus and forwards every step/failure event to all
// connected clients until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.log.Info("Running...")

	steps, unsubSteps := s.bus.Subscribe(ctx, events.TopicStepCompleted, false)
	failures, unsubFailures := s.bus.Subscribe(ctx, events.TopicRunFailed, false)
	defer unsubSteps()
	defer unsubFailures()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			s.log.Info("Stopped")
			return
		case ev := <-steps:
			s.broadcast("step", ev)
		case ev := <-failures:
			s.broadcast("failure", ev)
		}
	}
}

type message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (s *Server) broadcast(kind string, payload any) {
	msg := message{Type: kind, Payload: payload}
	raw, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal %s event: %v", kind, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			s.log.Debug("write to dashboard client failed: %v", err)
			go s.disconnect(conn)
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
}
