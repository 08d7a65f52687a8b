// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/launchpad/internal/health"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/startup"
	"github.com/ManuGH/launchpad/internal/state"
)

const maxBodyBytes = 1 << 10

// NetworkResponse is the body of GET /api/v1/network.
type NetworkResponse struct {
	Status              netcheck.Result `json:"status"`
	LastProbe           netcheck.Result `json:"last_probe"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Outage              bool            `json:"outage"`
}

// RecoveryResponse is the body of the recovery endpoints.
type RecoveryResponse struct {
	Running bool                `json:"running"`
	State   state.RecoveryState `json:"state"`
}

// DecisionRequest answers the startup offline question.
type DecisionRequest struct {
	Limited *bool `json:"limited"`
}

// DecisionResponse reports whether the orchestrator is waiting for an answer.
type DecisionResponse struct {
	Pending bool             `json:"pending"`
	Network *netcheck.Result `json:"network,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(health.StatusHealthy)})
		return
	}
	s.deps.Health.ServeHealth(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	s.deps.Health.ServeReady(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.Snapshot())
}

func (s *Server) handleNetwork(w http.ResponseWriter, _ *http.Request) {
	n := s.deps.Network
	writeJSON(w, http.StatusOK, NetworkResponse{
		Status:              n.Status(),
		LastProbe:           n.LastProbe(),
		ConsecutiveFailures: n.ConsecutiveFailures(),
		Outage:              n.Outage(),
	})
}

func (s *Server) handleRecoveryStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RecoveryResponse{
		Running: s.deps.Network.Recovering(),
		State:   s.deps.Network.Recovery(),
	})
}

// handleRecoveryTrigger starts a recovery: 202 when started, 409 when one is
// already running.
func (s *Server) handleRecoveryTrigger(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	if !s.deps.Network.StartRecovery(r.Context()) {
		logger.Info().Str(log.FieldEvent, "api.recovery_busy").Msg("recovery already running")
		writeJSON(w, http.StatusConflict, RecoveryResponse{
			Running: true,
			State:   s.deps.Network.Recovery(),
		})
		return
	}
	logger.Info().Str(log.FieldEvent, "api.recovery_started").Msg("manual recovery started")
	writeJSON(w, http.StatusAccepted, RecoveryResponse{
		Running: true,
		State:   s.deps.Network.Recovery(),
	})
}

func (s *Server) handleDecisionPending(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Decisions == nil {
		writeJSON(w, http.StatusOK, DecisionResponse{})
		return
	}
	res, ok := s.deps.Decisions.Pending()
	resp := DecisionResponse{Pending: ok}
	if ok {
		resp.Network = &res
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDecisionResolve(w http.ResponseWriter, r *http.Request) {
	if s.deps.Decisions == nil {
		writeNotFound(w)
		return
	}

	var req DecisionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Limited == nil {
		writeError(w, http.StatusBadRequest, `field "limited" is required`)
		return
	}

	if err := s.deps.Decisions.Resolve(*req.Limited); err != nil {
		if errors.Is(err, startup.ErrNoPendingDecision) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "api.decision").
		Bool("limited", *req.Limited).
		Msg("startup decision resolved")
	writeJSON(w, http.StatusOK, map[string]bool{"limited": *req.Limited})
}

func (s *Server) handleAssetStats(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Assets == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Assets.Stats())
}

func (s *Server) handleClearFailed(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Assets == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.deps.Assets.ClearFailed()})
}
