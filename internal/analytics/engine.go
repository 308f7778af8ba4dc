package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/linkstudio/affitrack/internal/metrics"
	"github.com/linkstudio/affitrack/internal/models"
	"github.com/linkstudio/affitrack/internal/storage"
)

// Engine answers the reporting queries: period summaries and ranked
// top-N lists per dimension, each with a comparison against the
// prior window.
type Engine struct {
	events   storage.EventLog
	entities storage.EntityStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewEngine creates an analytics engine.
func NewEngine(events storage.EventLog, entities storage.EntityStore, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		events:   events,
		entities: entities,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// ===========================================
// SUMMARY
// ===========================================

// CTRPoint is one day's click-through rate.
type CTRPoint struct {
	Date string  `json:"date"`
	CTR  float64 `json:"ctr"`
}

// MetricSummary compares one metric across the two windows.
type MetricSummary struct {
	Count    int64                `json:"count"`
	OldCount int64                `json:"old_count"`
	Diff     int64                `json:"diff"`
	Dates    []storage.DailyCount `json:"dates"`
	OldDates []storage.DailyCount `json:"old_dates,omitempty"`
}

// CTRSummary compares click-through rate across the two windows.
type CTRSummary struct {
	Count    float64    `json:"count"`
	OldCount float64    `json:"old_count"`
	Diff     float64    `json:"diff"`
	Dates    []CTRPoint `json:"dates"`
}

// Summary is the period overview: clicks, impressions and CTR, each
// with totals, daily series and period-over-period diffs.
type Summary struct {
	Clicks      MetricSummary `json:"clicks"`
	Impressions MetricSummary `json:"impressions"`
	CTR         CTRSummary    `json:"ctr"`
	Period      Period        `json:"period"`
}

func sumCounts(counts []storage.DailyCount) int64 {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	return total
}

// summaryCTR is the window-level rate: the click/impression ratio
// rounded to two decimals, then scaled to a percentage.
func summaryCTR(clicks, impressions int64) float64 {
	if impressions == 0 {
		return 0
	}
	return round2(float64(clicks)/float64(impressions)) * 100
}

// Summarize builds the Summary for one range token, optionally
// narrowed by f.
func (e *Engine) Summarize(ctx context.Context, rangeToken string, f storage.EventFilter) (*Summary, error) {
	started := e.now()
	period := ResolvePeriod(rangeToken, started)

	clicks, err := e.events.DailyCounts(ctx, models.ActionClick, period.Start, period.End, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load clicks: %w", err)
	}
	oldClicks, err := e.events.DailyCounts(ctx, models.ActionClick, period.OldStart, period.OldEnd, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior clicks: %w", err)
	}
	impressions, err := e.events.DailyCounts(ctx, models.ActionImpression, period.Start, period.End, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load impressions: %w", err)
	}
	oldImpressions, err := e.events.DailyCounts(ctx, models.ActionImpression, period.OldStart, period.OldEnd, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior impressions: %w", err)
	}

	clickCount := sumCounts(clicks)
	oldClickCount := sumCounts(oldClicks)
	impCount := sumCounts(impressions)
	oldImpCount := sumCounts(oldImpressions)

	ctr := summaryCTR(clickCount, impCount)
	oldCTR := summaryCTR(oldClickCount, oldImpCount)

	// The per-day CTR series runs over impression days: a day with
	// impressions but no clicks yields 0, a day with clicks but no
	// impressions yields nothing.
	clicksByDay := make(map[string]int64, len(clicks))
	for _, c := range clicks {
		clicksByDay[c.Date] = c.Count
	}
	ctrDates := make([]CTRPoint, 0, len(impressions))
	for _, imp := range impressions {
		ctrDates = append(ctrDates, CTRPoint{
			Date: imp.Date,
			CTR:  summaryCTR(clicksByDay[imp.Date], imp.Count),
		})
	}

	e.metrics.RecordAnalyticsQuery("summary", e.now().Sub(started))

	return &Summary{
		Clicks: MetricSummary{
			Count:    clickCount,
			OldCount: oldClickCount,
			Diff:     clickCount - oldClickCount,
			Dates:    clicks,
			OldDates: oldClicks,
		},
		Impressions: MetricSummary{
			Count:    impCount,
			OldCount: oldImpCount,
			Diff:     impCount - oldImpCount,
			Dates:    impressions,
			OldDates: oldImpressions,
		},
		CTR: CTRSummary{
			Count:    ctr,
			OldCount: oldCTR,
			Diff:     round2(ctr - oldCTR),
			Dates:    ctrDates,
		},
		Period: period,
	}, nil
}

// ===========================================
// TOP-N RANKINGS
// ===========================================

// TopEntry is one ranked group with its prior-window comparison.
type TopEntry struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	EditLink        string  `json:"editLink,omitempty"`
	Clicks          int64   `json:"clicks"`
	ClicksDiff      int64   `json:"clicksDiff"`
	OldClicks       int64   `json:"oldClicks"`
	Impressions     int64   `json:"impressions"`
	ImpressionsDiff int64   `json:"impressionsDiff"`
	OldImpressions  int64   `json:"oldImpressions"`
	CTR             float64 `json:"ctr"`
	CTRDiff         float64 `json:"ctrDiff"`
	OldCTR          float64 `json:"oldCtr"`
}

// TopReport is the full ranking payload for one dimension.
type TopReport struct {
	Current []storage.GroupCount `json:"current"`
	Old     []storage.GroupCount `json:"old"`
	Top     []TopEntry           `json:"top"`
	Period  Period               `json:"period"`
	Summary *Summary             `json:"summary"`
}

// groupCTR is the per-group rate: the percentage rounded to two
// decimals. It intentionally rounds at a different point than the
// window-level rate.
func groupCTR(clicks, impressions int64) float64 {
	if impressions == 0 {
		return 0
	}
	return round2(float64(clicks) / float64(impressions) * 100)
}

// dimensionFilter narrows a summary to the events of one dimension.
func dimensionFilter(dimension string) storage.EventFilter {
	switch dimension {
	case storage.DimensionBrand:
		return storage.EventFilter{BrandsOnly: true}
	case storage.DimensionPage:
		return storage.EventFilter{PagesOnly: true}
	case storage.DimensionLink:
		return storage.EventFilter{AffiliateType: models.AffiliateTypeLink}
	case storage.DimensionAsset:
		return storage.EventFilter{AffiliateType: models.AffiliateTypeAsset}
	}
	return storage.EventFilter{}
}

// Top builds the ranking report for one dimension. The prior-window
// figures come from an independent top-N of that window: a group
// outside the prior top-N compares against zeros.
func (e *Engine) Top(ctx context.Context, dimension, rangeToken string, limit int) (*TopReport, error) {
	started := e.now()
	period := ResolvePeriod(rangeToken, started)

	current, err := e.events.TopGroups(ctx, dimension, period.Start, period.End, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank %ss: %w", dimension, err)
	}
	old, err := e.events.TopGroups(ctx, dimension, period.OldStart, period.OldEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank prior %ss: %w", dimension, err)
	}

	oldByID := make(map[int64]storage.GroupCount, len(old))
	for _, g := range old {
		oldByID[g.ID] = g
	}

	ids := make([]int64, 0, len(current))
	for _, g := range current {
		ids = append(ids, g.ID)
	}
	titles, err := e.entities.Titles(ctx, dimension, ids)
	if err != nil {
		e.logger.Warn("failed to resolve titles", zap.String("dimension", dimension), zap.Error(err))
		titles = map[int64]string{}
	}

	top := make([]TopEntry, 0, len(current))
	for _, g := range current {
		prior := oldByID[g.ID]
		ctr := groupCTR(g.Clicks, g.Impressions)
		oldCTR := groupCTR(prior.Clicks, prior.Impressions)
		top = append(top, TopEntry{
			ID:              g.ID,
			Title:           titles[g.ID],
			EditLink:        editLink(dimension, g.ID),
			Clicks:          g.Clicks,
			ClicksDiff:      g.Clicks - prior.Clicks,
			OldClicks:       prior.Clicks,
			Impressions:     g.Impressions,
			ImpressionsDiff: g.Impressions - prior.Impressions,
			OldImpressions:  prior.Impressions,
			CTR:             ctr,
			CTRDiff:         round2(ctr - oldCTR),
			OldCTR:          oldCTR,
		})
	}

	summary, err := e.Summarize(ctx, rangeToken, dimensionFilter(dimension))
	if err != nil {
		return nil, err
	}

	e.metrics.RecordAnalyticsQuery("top_"+dimension, e.now().Sub(started))

	return &TopReport{
		Current: current,
		Old:     old,
		Top:     RankList(top),
		Period:  period,
		Summary: summary,
	}, nil
}

// editLink points at the management endpoint of the ranked entity.
// Pages belong to the hosting site and have no edit surface here.
func editLink(dimension string, id int64) string {
	switch dimension {
	case storage.DimensionBrand:
		return fmt.Sprintf("/entities/brands/%d", id)
	case storage.DimensionLink:
		return fmt.Sprintf("/entities/links/%d", id)
	case storage.DimensionAsset:
		return fmt.Sprintf("/entities/assets/%d", id)
	}
	return ""
}

// RankList orders entries for display: everything with clicks first,
// most clicked on top, then click-less entries that still collected
// impressions, most viewed on top. Each id appears once. Ties keep
// the incoming order, which ranks lower ids first.
func RankList(entries []TopEntry) []TopEntry {
	clicked := make([]TopEntry, 0, len(entries))
	viewed := make([]TopEntry, 0, len(entries))
	for _, en := range entries {
		if en.Clicks > 0 {
			clicked = append(clicked, en)
		}
		if en.Impressions > 0 {
			viewed = append(viewed, en)
		}
	}
	sort.SliceStable(clicked, func(i, j int) bool { return clicked[i].Clicks > clicked[j].Clicks })
	sort.SliceStable(viewed, func(i, j int) bool { return viewed[i].Impressions > viewed[j].Impressions })

	seen := make(map[int64]bool, len(entries))
	out := make([]TopEntry, 0, len(entries))
	for _, en := range clicked {
		if !seen[en.ID] {
			out = append(out, en)
			seen[en.ID] = true
		}
	}
	for _, en := range viewed {
		if !seen[en.ID] {
			out = append(out, en)
			seen[en.ID] = true
		}
	}
	return out
}
