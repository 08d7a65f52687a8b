// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/launchpad/internal/events"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventStream subscribes to backend events over a websocket. It implements
// events.Source. Dropped connections are redialled with backoff until the
// subscription is released.
type EventStream struct {
	wsURL      string
	dialer     *websocket.Dialer
	buffer     int
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger
}

// StreamOption configures an EventStream.
type StreamOption func(*EventStream)

// WithBackoff sets the redial backoff bounds.
func WithBackoff(minBackoff, maxBackoff time.Duration) StreamOption {
	return func(s *EventStream) {
		s.minBackoff = minBackoff
		s.maxBackoff = maxBackoff
	}
}

// WithBuffer sets the delivery channel capacity.
func WithBuffer(n int) StreamOption { return func(s *EventStream) { s.buffer = n } }

// Events returns an event stream for the client's backend.
func (c *Client) Events(opts ...StreamOption) *EventStream {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + PathEvents

	s := &EventStream{
		wsURL:      u.String(),
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		buffer:     64,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		logger:     log.WithComponent("backend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventStream) urlFor(types []events.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return s.wsURL + "?" + url.Values{"types": {strings.Join(names, ",")}}.Encode()
}

// Subscribe dials once synchronously so a dead backend is reported to the
// caller; later drops are redialled in the background.
func (s *EventStream) Subscribe(ctx context.Context, types []events.Type) (<-chan events.Event, func(), error) {
	target := s.urlFor(types)
	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial event stream: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		stream: s,
		target: target,
		out:    make(chan events.Event, s.buffer),
		done:   make(chan struct{}),
	}
	sub.setConn(conn)

	go sub.run(subCtx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			sub.shutdown()
			<-sub.done
		})
	}
	return sub.out, release, nil
}

type subscription struct {
	stream *EventStream
	target string
	out    chan events.Event
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// setConn stores c as the live connection. Once the subscription has been
// shut down c is closed instead and setConn reports false.
func (s *subscription) setConn(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = c.Close()
		return false
	}
	s.conn = c
	return true
}

// closeConn drops the live connection; a later setConn may replace it.
func (s *subscription) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

// shutdown closes the live connection and refuses any later one, which
// unblocks readLoop even when a redial finishes after release.
func (s *subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.dropLocked()
}

func (s *subscription) dropLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *subscription) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	defer s.closeConn()

	logger := s.stream.logger
	backoff := s.stream.minBackoff
	for {
		if conn := s.currentConn(); conn != nil {
			s.readLoop(ctx, conn)
			s.closeConn()
		}
		if ctx.Err() != nil {
			return
		}

		logger.Warn().
			Str(log.FieldEvent, "backend.events_disconnected").
			Dur("retry_in", backoff).
			Msg("event stream dropped, reconnecting")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, s.stream.maxBackoff)

		conn, _, err := s.stream.dialer.DialContext(ctx, s.target, nil)
		if err != nil {
			logger.Debug().Err(err).Str(log.FieldEvent, "backend.events_redial_failed").Msg("event stream redial failed")
			continue
		}
		if !s.setConn(conn) {
			return
		}
		backoff = s.stream.minBackoff
		logger.Info().Str(log.FieldEvent, "backend.events_reconnected").Msg("event stream reconnected")
	}
}

func (s *subscription) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.stream.logger.Debug().Err(err).Str(log.FieldEvent, "backend.events_read_failed").Msg("event stream read failed")
			}
			return
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			s.stream.logger.Debug().Err(err).Str(log.FieldEvent, "backend.events_bad_frame").Msg("skipping malformed event frame")
			continue
		}
		select {
		case s.out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
