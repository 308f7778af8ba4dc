package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linkstudio/affitrack/internal/models"
)

// MemoryEventLog is an in-memory EventLog for development and
// testing.
type MemoryEventLog struct {
	mu     sync.RWMutex
	events []models.TrackingEvent
	nextID int64
}

// NewMemoryEventLog creates a new in-memory event log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{nextID: 1}
}

func (l *MemoryEventLog) Append(ctx context.Context, ev *models.TrackingEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev.Entry.IsZero() {
		ev.Entry = time.Now().UTC()
	}
	ev.ID = l.nextID
	l.nextID++
	l.events = append(l.events, *ev)
	return nil
}

func matchFilter(ev *models.TrackingEvent, f EventFilter) bool {
	if f.BrandsOnly && ev.BrandID <= 0 {
		return false
	}
	if f.PagesOnly && (ev.SourceID <= 0 || ev.SourceType != models.SourceSingular) {
		return false
	}
	if f.AffiliateType != "" && ev.AffiliateType != f.AffiliateType {
		return false
	}
	return true
}

func (l *MemoryEventLog) DailyCounts(ctx context.Context, action string, from, to time.Time, f EventFilter) ([]DailyCount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byDay := make(map[string]int64)
	for i := range l.events {
		ev := &l.events[i]
		if ev.Action != action || !matchFilter(ev, f) {
			continue
		}
		if ev.Entry.Before(from) || ev.Entry.After(to) {
			continue
		}
		byDay[ev.Entry.UTC().Format("2006-01-02")]++
	}

	out := make([]DailyCount, 0, len(byDay))
	for d, c := range byDay {
		out = append(out, DailyCount{Date: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// groupID extracts the grouping key of an event for one dimension,
// or 0 when the event does not belong to that dimension.
func groupID(ev *models.TrackingEvent, dimension string) int64 {
	switch dimension {
	case DimensionBrand:
		return ev.BrandID
	case DimensionPage:
		if ev.SourceType == models.SourceSingular {
			return ev.SourceID
		}
	case DimensionLink:
		if ev.AffiliateType == models.AffiliateTypeLink {
			return ev.AffiliateID
		}
	case DimensionAsset:
		if ev.AffiliateType == models.AffiliateTypeAsset {
			return ev.AffiliateID
		}
	}
	return 0
}

func (l *MemoryEventLog) TopGroups(ctx context.Context, dimension string, from, to time.Time, limit int) ([]GroupCount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	groups := make(map[int64]*GroupCount)
	for i := range l.events {
		ev := &l.events[i]
		if ev.Entry.Before(from) || ev.Entry.After(to) {
			continue
		}
		id := groupID(ev, dimension)
		if id <= 0 {
			continue
		}
		g, ok := groups[id]
		if !ok {
			g = &GroupCount{ID: id}
			groups[id] = g
		}
		switch ev.Action {
		case models.ActionClick:
			g.Clicks++
		case models.ActionImpression:
			g.Impressions++
		}
	}

	out := make([]GroupCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
