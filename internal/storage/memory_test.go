package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkstudio/affitrack/internal/models"
)

func TestMemoryEntityStore_ShortPathLookups(t *testing.T) {
	s := NewMemoryEntityStore()

	require.NoError(t, s.CreateLink(context.Background(), &models.Link{
		Title: "Offer", ShortPath: "go/offer", TargetURL: "https://example.com",
	}))
	require.NoError(t, s.CreateAsset(context.Background(), &models.Asset{
		Title: "Banner", ShortPath: "visit/banner", LinkID: 1,
	}))

	l, err := s.LinkByShortPath(context.Background(), "go/offer")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "Offer", l.Title)

	l, err = s.LinkByShortPath(context.Background(), "go/none")
	require.NoError(t, err)
	assert.Nil(t, l)

	a, err := s.AssetByShortPath(context.Background(), "visit/banner")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Banner", a.Title)
}

func TestMemoryEntityStore_UpdateMissingRow(t *testing.T) {
	s := NewMemoryEntityStore()

	err := s.UpdateBrand(context.Background(), &models.Brand{ID: 99, Name: "Ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryEntityStore_Titles(t *testing.T) {
	s := NewMemoryEntityStore()

	require.NoError(t, s.CreateBrand(context.Background(), &models.Brand{ID: 1, Name: "Acme"}))
	require.NoError(t, s.CreateLink(context.Background(), &models.Link{ID: 2, Title: "Offer", ShortPath: "go/offer"}))
	require.NoError(t, s.CreateAsset(context.Background(), &models.Asset{ID: 3, Title: "Banner", ShortPath: "visit/b"}))
	s.SetPageTitle(4, "Review Post")

	brandTitles, err := s.Titles(context.Background(), DimensionBrand, []int64{1, 99})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "Acme"}, brandTitles)

	linkTitles, err := s.Titles(context.Background(), DimensionLink, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{2: "Offer"}, linkTitles)

	assetTitles, err := s.Titles(context.Background(), DimensionAsset, []int64{3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{3: "Banner"}, assetTitles)

	pageTitles, err := s.Titles(context.Background(), DimensionPage, []int64{4})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{4: "Review Post"}, pageTitles)
}

func seedEvent(t *testing.T, l *MemoryEventLog, ev models.TrackingEvent) {
	t.Helper()
	require.NoError(t, l.Append(context.Background(), &ev))
}

func TestMemoryEventLog_AppendAssignsEntry(t *testing.T) {
	l := NewMemoryEventLog()

	ev := &models.TrackingEvent{Action: models.ActionClick, AffiliateType: models.AffiliateTypeLink}
	require.NoError(t, l.Append(context.Background(), ev))

	assert.False(t, ev.Entry.IsZero())
	assert.NotZero(t, ev.ID)
}

func TestMemoryEventLog_DailyCountsOrderedNewestFirst(t *testing.T) {
	l := NewMemoryEventLog()

	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, Entry: day1})
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, Entry: day1})
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, Entry: day2})
	// Outside the window.
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, Entry: day2.AddDate(0, 0, 10)})
	// Wrong action.
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionImpression, Entry: day1})

	counts, err := l.DailyCounts(context.Background(), models.ActionClick,
		time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 13, 23, 59, 59, 0, time.UTC),
		EventFilter{})
	require.NoError(t, err)

	require.Len(t, counts, 2)
	assert.Equal(t, DailyCount{Date: "2026-03-12", Count: 1}, counts[0])
	assert.Equal(t, DailyCount{Date: "2026-03-10", Count: 2}, counts[1])
}

func TestMemoryEventLog_Filters(t *testing.T) {
	l := NewMemoryEventLog()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, BrandID: 1, Entry: at,
		AffiliateType: models.AffiliateTypeLink, SourceID: 5, SourceType: models.SourceSingular})
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, Entry: at,
		AffiliateType: models.AffiliateTypeAsset, SourceID: 5, SourceType: models.SourceArchive})
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, Entry: at,
		AffiliateType: models.AffiliateTypeLink, SourceType: models.SourceDirect})

	from := at.AddDate(0, 0, -1)
	to := at.AddDate(0, 0, 1)

	brandCounts, err := l.DailyCounts(context.Background(), models.ActionClick, from, to, EventFilter{BrandsOnly: true})
	require.NoError(t, err)
	require.Len(t, brandCounts, 1)
	assert.Equal(t, int64(1), brandCounts[0].Count)

	// Pages require both a source id and a singular source type.
	pageCounts, err := l.DailyCounts(context.Background(), models.ActionClick, from, to, EventFilter{PagesOnly: true})
	require.NoError(t, err)
	require.Len(t, pageCounts, 1)
	assert.Equal(t, int64(1), pageCounts[0].Count)

	linkCounts, err := l.DailyCounts(context.Background(), models.ActionClick, from, to,
		EventFilter{AffiliateType: models.AffiliateTypeLink})
	require.NoError(t, err)
	require.Len(t, linkCounts, 1)
	assert.Equal(t, int64(2), linkCounts[0].Count)
}

func TestMemoryEventLog_TopGroupsRankingAndTieBreak(t *testing.T) {
	l := NewMemoryEventLog()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	add := func(brandID int64, action string, n int) {
		for i := 0; i < n; i++ {
			seedEvent(t, l, models.TrackingEvent{Action: action, BrandID: brandID, Entry: at,
				AffiliateType: models.AffiliateTypeLink})
		}
	}
	add(3, models.ActionClick, 2)
	add(1, models.ActionClick, 5)
	add(2, models.ActionClick, 2)
	add(2, models.ActionImpression, 9)

	groups, err := l.TopGroups(context.Background(), DimensionBrand,
		at.AddDate(0, 0, -1), at.AddDate(0, 0, 1), 10)
	require.NoError(t, err)

	require.Len(t, groups, 3)
	assert.Equal(t, GroupCount{ID: 1, Clicks: 5, Impressions: 0}, groups[0])
	// Equal click counts rank by ascending id.
	assert.Equal(t, GroupCount{ID: 2, Clicks: 2, Impressions: 9}, groups[1])
	assert.Equal(t, GroupCount{ID: 3, Clicks: 2, Impressions: 0}, groups[2])
}

func TestMemoryEventLog_TopGroupsLimitAndDimensions(t *testing.T) {
	l := NewMemoryEventLog()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, AffiliateID: 10, Entry: at,
		AffiliateType: models.AffiliateTypeLink})
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, AffiliateID: 11, Entry: at,
		AffiliateType: models.AffiliateTypeAsset})
	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, SourceID: 20, SourceType: models.SourceSingular, Entry: at,
		AffiliateType: models.AffiliateTypeLink})

	links, err := l.TopGroups(context.Background(), DimensionLink, at.AddDate(0, 0, -1), at.AddDate(0, 0, 1), 10)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(10), links[0].ID)

	assets, err := l.TopGroups(context.Background(), DimensionAsset, at.AddDate(0, 0, -1), at.AddDate(0, 0, 1), 10)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, int64(11), assets[0].ID)

	pages, err := l.TopGroups(context.Background(), DimensionPage, at.AddDate(0, 0, -1), at.AddDate(0, 0, 1), 10)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, int64(20), pages[0].ID)

	seedEvent(t, l, models.TrackingEvent{Action: models.ActionClick, AffiliateID: 12, Entry: at,
		AffiliateType: models.AffiliateTypeLink})
	limited, err := l.TopGroups(context.Background(), DimensionLink, at.AddDate(0, 0, -1), at.AddDate(0, 0, 1), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
