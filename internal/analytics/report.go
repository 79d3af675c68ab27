// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ManuGH/vodsession/internal/domain/session/ports"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/log"
)

// Range limits for GetVideoAnalytics.
const (
	MinRangeDays = 1
	MaxRangeDays = 90
)

// CompletedThreshold is the completion percentage that counts a view as complete.
const CompletedThreshold = 90

// DropOffPoint counts sessions that ended below completion in one decile.
type DropOffPoint struct {
	Percent  int `json:"percent"` // lower bound of the decile
	Sessions int `json:"sessions"`
}

// DayEngagement is the activity of one UTC day.
type DayEngagement struct {
	Date      string  `json:"date"`
	Views     int64   `json:"views"`
	WatchTime float64 `json:"watchTime"`
	Events    int     `json:"events"`
}

// VideoAnalytics is the rollup for one video over a window of days.
type VideoAnalytics struct {
	VideoID             string          `json:"videoId"`
	RangeDays           int             `json:"rangeDays"`
	TotalViews          int64           `json:"totalViews"`
	UniqueViewers       int             `json:"uniqueViewers"`
	TotalWatchTime      float64         `json:"totalWatchTime"`
	AverageWatchTime    float64         `json:"averageWatchTime"`
	CompletionRate      float64         `json:"completionRate"` // 0..1 over ended sessions
	QualityDistribution map[string]int  `json:"qualityDistribution"`
	DeviceDistribution  map[string]int  `json:"deviceDistribution"`
	DropOffPoints       []DropOffPoint  `json:"dropOffPoints"`
	Engagement          []DayEngagement `json:"engagement"`
}

// GetVideoAnalytics aggregates the stored counters and logs for the last
// rangeDays UTC days, today included. rangeDays is clamped to [1,90].
func (a *Aggregator) GetVideoAnalytics(ctx context.Context, videoID string, rangeDays int) (*VideoAnalytics, error) {
	switch {
	case rangeDays < MinRangeDays:
		rangeDays = MinRangeDays
	case rangeDays > MaxRangeDays:
		rangeDays = MaxRangeDays
	}

	out := &VideoAnalytics{
		VideoID:             videoID,
		RangeDays:           rangeDays,
		QualityDistribution: map[string]int{},
		DeviceDistribution:  map[string]int{},
		DropOffPoints:       []DropOffPoint{},
		Engagement:          make([]DayEngagement, 0, rangeDays),
	}
	viewers := map[string]struct{}{}
	dropOff := map[int]int{}
	var ended, completed int

	logger := log.WithComponentFromContext(ctx, "analytics")
	today := a.now().UTC()
	for i := rangeDays - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(DateLayout)

		views, err := a.counter(ctx, store.VideoCounterKey(videoID, date, ports.AnalyticsSessionCreated))
		if err != nil {
			return nil, err
		}
		members, err := a.kv.SetMembers(ctx, store.VideoEventLogKey(videoID, date))
		if err != nil {
			return nil, fmt.Errorf("analytics: read event log %s: %w", date, err)
		}

		day := DayEngagement{Date: date, Views: views, Events: len(members)}
		for _, m := range members {
			var e ports.AnalyticsEvent
			if err := json.Unmarshal([]byte(m), &e); err != nil {
				logger.Debug().Err(err).Str("date", date).Msg("skipping undecodable analytics record")
				continue
			}
			switch e.Type {
			case ports.AnalyticsSessionCreated:
				viewers[e.UserID] = struct{}{}
				device, _ := e.Data[ports.DataDeviceType].(string)
				if device == "" {
					device = "unknown"
				}
				out.DeviceDistribution[device]++
			case ports.AnalyticsHeartbeat:
				if q, _ := e.Data[ports.DataQuality].(string); q != "" {
					out.QualityDistribution[q]++
				}
			case ports.AnalyticsSessionEnded:
				ended++
				wt := number(e.Data[ports.DataWatchTime])
				day.WatchTime += wt
				out.TotalWatchTime += wt
				completion := number(e.Data[ports.DataCompletion])
				if completion >= CompletedThreshold {
					completed++
				} else {
					dropOff[decile(completion)]++
				}
			}
		}
		out.TotalViews += views
		out.Engagement = append(out.Engagement, day)
	}

	out.UniqueViewers = len(viewers)
	if ended > 0 {
		out.AverageWatchTime = out.TotalWatchTime / float64(ended)
		out.CompletionRate = float64(completed) / float64(ended)
	}
	for pct, n := range dropOff {
		out.DropOffPoints = append(out.DropOffPoints, DropOffPoint{Percent: pct, Sessions: n})
	}
	sort.Slice(out.DropOffPoints, func(i, j int) bool {
		return out.DropOffPoints[i].Percent < out.DropOffPoints[j].Percent
	})
	return out, nil
}

func (a *Aggregator) counter(ctx context.Context, key string) (int64, error) {
	raw, err := a.kv.Get(ctx, key)
	if store.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("analytics: read counter: %w", err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("analytics: counter %s: %w", key, err)
	}
	return n, nil
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func decile(pct float64) int {
	switch {
	case pct <= 0:
		return 0
	case pct >= 100:
		return 90
	default:
		return int(pct/10) * 10
	}
}
