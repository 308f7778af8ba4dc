package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkstudio/affitrack/internal/metrics"
	"github.com/linkstudio/affitrack/internal/middleware"
	"github.com/linkstudio/affitrack/internal/models"
	"github.com/linkstudio/affitrack/internal/session"
	"github.com/linkstudio/affitrack/internal/storage"
)

var testMetrics = metrics.NewMetrics("tracking_test")

type trackingFixture struct {
	entities *storage.MemoryEntityStore
	events   *storage.MemoryEventLog
	sessions *session.MemoryStore
	resolver *Resolver
}

func newFixture(t *testing.T) *trackingFixture {
	t.Helper()
	f := &trackingFixture{
		entities: storage.NewMemoryEntityStore(),
		events:   storage.NewMemoryEventLog(),
		sessions: session.NewMemoryStore(30 * time.Minute),
	}
	f.resolver = NewResolver(f.entities, f.events, f.sessions, ResolverConfig{
		SessionCookieName: "aff_sid",
		ProbeSignatures:   []string{"URLDetails"},
		AdminReferer:      "/entities/",
	}, zap.NewNop(), testMetrics)
	return f
}

func (f *trackingFixture) seedLink(t *testing.T, shortPath, target string, brandID int64) *models.Link {
	t.Helper()
	l := &models.Link{BrandID: brandID, Title: "Offer", ShortPath: shortPath, TargetURL: target}
	require.NoError(t, f.entities.CreateLink(context.Background(), l))
	return l
}

func (f *trackingFixture) loggedEvents(t *testing.T) []storage.DailyCount {
	t.Helper()
	counts, err := f.events.DailyCounts(context.Background(), models.ActionClick,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour), storage.EventFilter{})
	require.NoError(t, err)
	return counts
}

func serve(f *trackingFixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f.resolver.Handler(next).ServeHTTP(rec, req)
	return rec
}

func TestResolver_RedirectsLinkAndLogsClick(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/go/offer", nil))

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/buy", rec.Header().Get("Location"))

	counts := f.loggedEvents(t)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(1), counts[0].Count)
}

func TestResolver_AssetBorrowsParentLinkTarget(t *testing.T) {
	f := newFixture(t)
	link := f.seedLink(t, "go/offer", "https://example.com/buy", 7)
	require.NoError(t, f.entities.CreateAsset(context.Background(), &models.Asset{
		BrandID:   7,
		LinkID:    link.ID,
		Title:     "Banner",
		ShortPath: "visit/banner",
	}))

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/visit/banner", nil))

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/buy", rec.Header().Get("Location"))
}

func TestResolver_AssetWithoutParentFallsThrough(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.entities.CreateAsset(context.Background(), &models.Asset{
		BrandID:   7,
		Title:     "Orphan",
		ShortPath: "visit/orphan",
	}))

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/visit/orphan", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.loggedEvents(t))
}

func TestResolver_LinkWithoutTargetFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/empty", "", 7)

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/go/empty", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.loggedEvents(t))
}

func TestResolver_SingleSegmentPathFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/about", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolver_ProbeUserAgentSkipped(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)

	req := httptest.NewRequest(http.MethodGet, "/go/offer", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 URLDetails preview bot")
	rec := serve(f, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.loggedEvents(t))
}

func TestResolver_AuthenticatedRequestSkipped(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)

	req := httptest.NewRequest(http.MethodGet, "/go/offer", nil)
	ctx := context.WithValue(req.Context(), middleware.APIKeyContextKey, "operator-key")
	rec := serve(f, req.WithContext(ctx))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.loggedEvents(t))
}

func TestResolver_AdminRefererSkipped(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)

	req := httptest.NewRequest(http.MethodGet, "/go/offer", nil)
	req.Header.Set("Referer", "http://localhost:8080/entities/links/3")
	rec := serve(f, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.loggedEvents(t))
}

func TestResolver_ConsumesAttributionContext(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)

	require.NoError(t, f.sessions.Put(context.Background(), "visitor-1", &models.AttributionContext{
		PlaceholderID: 11,
		GroupID:       22,
		SourceID:      33,
		SourceType:    models.SourceSingular,
		VisitType:     models.VisitReferer,
	}))

	req := httptest.NewRequest(http.MethodGet, "/go/offer", nil)
	req.AddCookie(&http.Cookie{Name: "aff_sid", Value: "visitor-1"})
	rec := serve(f, req)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)

	counts, err := f.events.DailyCounts(context.Background(), models.ActionClick,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour),
		storage.EventFilter{PagesOnly: true})
	require.NoError(t, err)
	require.Len(t, counts, 1)

	// The context is consumed: a second click reverts to defaults.
	ac, err := f.sessions.Take(context.Background(), "visitor-1")
	require.NoError(t, err)
	assert.Nil(t, ac)
}

func TestResolver_DirectVisitDefaults(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/go/offer", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)

	// Without stored context the click is a direct visit with no
	// source page attached.
	counts, err := f.events.DailyCounts(context.Background(), models.ActionClick,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour),
		storage.EventFilter{PagesOnly: true})
	require.NoError(t, err)
	assert.Empty(t, counts)
}

type failingEventLog struct{}

func (failingEventLog) Append(context.Context, *models.TrackingEvent) error {
	return errors.New("log unavailable")
}

func (failingEventLog) DailyCounts(context.Context, string, time.Time, time.Time, storage.EventFilter) ([]storage.DailyCount, error) {
	return nil, nil
}

func (failingEventLog) TopGroups(context.Context, string, time.Time, time.Time, int) ([]storage.GroupCount, error) {
	return nil, nil
}

func TestResolver_RedirectsEvenWhenLogFails(t *testing.T) {
	f := newFixture(t)
	f.seedLink(t, "go/offer", "https://example.com/buy", 7)
	f.resolver.events = failingEventLog{}

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/go/offer", nil))

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/buy", rec.Header().Get("Location"))
}
