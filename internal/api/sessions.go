// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/vodsession/internal/api/middleware"
	"github.com/ManuGH/vodsession/internal/domain/session/manager"
	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/log"
)

type createSessionRequest struct {
	VideoID    string           `json:"videoId"`
	CourseID   string           `json:"courseId,omitempty"`
	DeviceInfo model.DeviceInfo `json:"deviceInfo,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.VideoID == "" {
		writeProblem(w, http.StatusBadRequest, "invalid_argument", "videoId is required")
		return
	}

	sess, err := s.deps.Sessions.CreateSession(r.Context(), manager.CreateRequest{
		VideoID:    req.VideoID,
		UserID:     p.UserID,
		CourseID:   req.CourseID,
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// owned loads the session in the URL and checks that it belongs to the caller.
// Foreign sessions are reported as absent and raise a security signal.
func (s *Server) owned(r *http.Request) (*model.Session, error) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.deps.Sessions.GetSession(r.Context(), id)
	if err != nil {
		return nil, err
	}
	p, _ := middleware.PrincipalFromContext(r.Context())
	if sess.UserID != p.UserID {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Str(log.FieldSessionID, id).
			Msg("access to foreign session refused")
		s.signal(r.Context(), ports.Signal{
			Kind:     ports.SignalForeignSession,
			Severity: ports.SeverityMedium,
			UserID:   p.UserID,
			Context:  map[string]any{"sessionId": id, "path": r.URL.Path},
		})
		return nil, manager.ErrNotFound
	}
	return sess, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.owned(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var u manager.Update
	if err := decodeJSON(w, r, &u); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	sess, err := s.owned(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.deps.Sessions.UpdateSession(r.Context(), sess.SessionID, u); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.owned(r)
	if errors.Is(err, manager.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.deps.Sessions.EndSession(r.Context(), sess.SessionID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHeartbeat answers unknown and foreign sessions with status invalid,
// matching the best-effort contract of heartbeats.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb manager.Heartbeat
	if err := decodeJSON(w, r, &hb); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	sess, err := s.owned(r)
	if errors.Is(err, manager.ErrNotFound) {
		writeJSON(w, http.StatusOK, manager.HeartbeatResult{Status: manager.StatusInvalid})
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.Sessions.ProcessHeartbeat(r.Context(), sess.SessionID, hb)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var in manager.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if in.Type == "" {
		writeProblem(w, http.StatusBadRequest, "invalid_argument", "type is required")
		return
	}
	sess, err := s.owned(r)
	if errors.Is(err, manager.ErrNotFound) {
		writeJSON(w, http.StatusAccepted, manager.TrackResult{})
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Sessions.TrackEvent(r.Context(), sess.SessionID, in))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	history, err := s.deps.Sessions.WatchHistory(r.Context(), p.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}
