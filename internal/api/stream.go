// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 16
	writeTimeout = 5 * time.Second
)

// handleStateStream upgrades to a websocket and pushes a state snapshot on
// connect and after every change. Slow clients miss intermediate snapshots
// but always converge on the latest.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	s.streams.Add(1)
	defer s.streams.Done()

	logger := log.WithComponentFromContext(r.Context(), "api")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Str(log.FieldEvent, "api.stream_upgrade_failed").Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snaps, unsubscribe := s.deps.State.Subscribe(streamBuffer)
	defer unsubscribe()

	// The reader only detects the client going away.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-readDone
	}()

	logger.Debug().Str(log.FieldEvent, "api.stream_open").Msg("state stream opened")
	if err := writeSnapshot(conn, s.deps.State.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		case st, ok := <-snaps:
			if !ok {
				return
			}
			if err := writeSnapshot(conn, st); err != nil {
				logger.Debug().Err(err).Str(log.FieldEvent, "api.stream_write_failed").Msg("state stream closed")
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, st state.State) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(st)
}
