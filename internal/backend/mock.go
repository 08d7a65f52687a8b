// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ManuGH/launchpad/internal/events"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/gorilla/websocket"
)

// Fixtures is the data a MockServer serves.
type Fixtures struct {
	Settings     map[string]any
	Repositories RepositoriesResponse
	Installs     []state.InstalledItem
	Compat       map[string]string
	Runners      []state.Runner
	Tools        []state.ToolStatus
	Jobs         []state.Job
}

// MockServer is an in-process backend for tests and local development.
type MockServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	fixtures Fixtures
	calls    map[string]int
	failures map[string]int // path -> status to answer with
	subs     map[*mockSub]struct{}
}

type mockSub struct {
	conn  *websocket.Conn
	types map[events.Type]bool
	wmu   sync.Mutex
}

// NewMockServer starts a server on a loopback port.
func NewMockServer(f Fixtures) *MockServer {
	m := &MockServer{
		fixtures: f,
		calls:    make(map[string]int),
		failures: make(map[string]int),
		subs:     make(map[*mockSub]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(PathSettings, m.jsonHandler(func(f Fixtures) any { return f.Settings }))
	mux.HandleFunc(PathRepositories, m.jsonHandler(func(f Fixtures) any { return f.Repositories }))
	mux.HandleFunc(PathInstalls, m.jsonHandler(func(f Fixtures) any { return f.Installs }))
	mux.HandleFunc(PathCompat, m.jsonHandler(func(f Fixtures) any { return f.Compat }))
	mux.HandleFunc(PathRunners, m.jsonHandler(func(f Fixtures) any { return f.Runners }))
	mux.HandleFunc(PathTools, m.jsonHandler(func(f Fixtures) any { return f.Tools }))
	mux.HandleFunc(PathJobs, m.jsonHandler(func(f Fixtures) any { return f.Jobs }))
	mux.HandleFunc(PathEvents, m.handleEvents)
	m.srv = httptest.NewServer(mux)
	return m
}

func (m *MockServer) URL() string { return m.srv.URL }

// Close disconnects event subscribers and stops the server.
func (m *MockServer) Close() {
	m.mu.Lock()
	for s := range m.subs {
		_ = s.conn.Close()
	}
	m.subs = map[*mockSub]struct{}{}
	m.mu.Unlock()
	m.srv.Close()
}

// Calls returns how often path was requested.
func (m *MockServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// SetFailure makes path answer with status; 0 clears it.
func (m *MockServer) SetFailure(path string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failures, path)
		return
	}
	m.failures[path] = status
}

// SetFixtures replaces the served data.
func (m *MockServer) SetFixtures(f Fixtures) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixtures = f
}

// Subscribers returns the number of connected event subscribers.
func (m *MockServer) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Publish sends ev to every subscriber interested in its type and returns
// how many received it.
func (m *MockServer) Publish(ev events.Event) int {
	m.mu.Lock()
	targets := make([]*mockSub, 0, len(m.subs))
	for s := range m.subs {
		if s.types[ev.Type] {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	n := 0
	for _, s := range targets {
		s.wmu.Lock()
		err := s.conn.WriteJSON(ev)
		s.wmu.Unlock()
		if err == nil {
			n++
		}
	}
	return n
}

// PublishRaw writes an arbitrary frame to every subscriber.
func (m *MockServer) PublishRaw(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		s.wmu.Lock()
		_ = s.conn.WriteMessage(websocket.TextMessage, frame)
		s.wmu.Unlock()
	}
}

// DropSubscribers closes every event connection without stopping the server.
func (m *MockServer) DropSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		_ = s.conn.Close()
		delete(m.subs, s)
	}
}

func (m *MockServer) record(path string) (Fixtures, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[path]++
	return m.fixtures, m.failures[path]
}

func (m *MockServer) jsonHandler(pick func(Fixtures) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, status := m.record(r.URL.Path)
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pick(f))
	}
}

func (m *MockServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, status := m.record(r.URL.Path)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := &mockSub{conn: conn, types: make(map[events.Type]bool)}
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t != "" {
			sub.types[events.Type(t)] = true
		}
	}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	// Drain until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	m.mu.Lock()
	delete(m.subs, sub)
	m.mu.Unlock()
	_ = conn.Close()
}
