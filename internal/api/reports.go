// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/vodsession/internal/analytics"
	"github.com/ManuGH/vodsession/internal/api/middleware"
	"github.com/ManuGH/vodsession/internal/domain/session/ports"
)

func (s *Server) handleVideoAnalytics(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.DefaultReportDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < analytics.MinRangeDays || n > analytics.MaxRangeDays {
			writeProblem(w, http.StatusBadRequest, "invalid_argument", "days must be an integer within [1,90]")
			return
		}
		days = n
	}
	report, err := s.deps.Reports.GetVideoAnalytics(r.Context(), chi.URLParam(r, "videoID"), days)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type verifyTokenResponse struct {
	Valid     bool       `json:"valid"`
	SessionID string     `json:"sessionId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// handleVerifyToken lets the delivery layer check an access token. Rejected
// tokens raise a low severity security signal.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	claims, err := s.deps.Tokens.Verify(req.Token)
	if err != nil {
		p, _ := middleware.PrincipalFromContext(r.Context())
		s.signal(r.Context(), ports.Signal{
			Kind:     ports.SignalTokenRejected,
			Severity: ports.SeverityLow,
			UserID:   p.UserID,
			Context:  map[string]any{"reason": err.Error(), "sessionId": claims.SessionID},
		})
		writeJSON(w, http.StatusUnauthorized, verifyTokenResponse{Reason: err.Error()})
		return
	}
	exp := claims.Expiry().UTC()
	writeJSON(w, http.StatusOK, verifyTokenResponse{Valid: true, SessionID: claims.SessionID, ExpiresAt: &exp})
}
