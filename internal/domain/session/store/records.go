// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/vodsession/internal/domain/session/model"
)

// Records gives typed access to session state on top of a Store.
type Records struct {
	KV Store
}

// GetSession loads a live session. Absent or expired sessions yield ErrNotFound.
func (r Records) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	if err := r.getJSON(ctx, SessionKey(sessionID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutSession writes s and (re)applies ttl.
func (r Records) PutSession(ctx context.Context, s *model.Session, ttl time.Duration) error {
	return r.putJSON(ctx, SessionKey(s.SessionID), s, ttl)
}

func (r Records) DeleteSession(ctx context.Context, sessionID string) error {
	return r.KV.Delete(ctx, SessionKey(sessionID))
}

// PutWatchHistory writes rec without expiry.
func (r Records) PutWatchHistory(ctx context.Context, rec model.WatchHistoryRecord) error {
	return r.putJSON(ctx, WatchHistoryKey(rec.SessionID), rec, 0)
}

func (r Records) GetWatchHistory(ctx context.Context, sessionID string) (*model.WatchHistoryRecord, error) {
	var rec model.WatchHistoryRecord
	if err := r.getJSON(ctx, WatchHistoryKey(sessionID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IndexWatchHistory adds sessionID to the user's history set.
func (r Records) IndexWatchHistory(ctx context.Context, userID, sessionID string) error {
	return r.KV.AddToSet(ctx, UserWatchHistoryKey(userID), sessionID, 0)
}

func (r Records) UserWatchHistory(ctx context.Context, userID string) ([]string, error) {
	return r.KV.SetMembers(ctx, UserWatchHistoryKey(userID))
}

func (r Records) getJSON(ctx context.Context, key string, v any) error {
	raw, err := r.KV.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r Records) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.KV.Set(ctx, key, raw, ttl)
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
