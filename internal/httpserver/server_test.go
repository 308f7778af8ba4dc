package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkstudio/affitrack/internal/config"
	"github.com/linkstudio/affitrack/internal/metrics"
	"github.com/linkstudio/affitrack/internal/middleware"
	"github.com/linkstudio/affitrack/internal/models"
)

var testMetrics = metrics.NewMetrics("httpserver_test")

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Addr: ":0", Env: "development"},
		Session: config.SessionConfig{
			CookieName: "aff_sid",
			TTL:        30 * time.Minute,
		},
		Nonce: config.NonceConfig{
			Secret:   "test-secret",
			Interval: 12 * time.Hour,
		},
		Tracking: config.TrackingConfig{
			ProbeSignatures: []string{"URLDetails"},
			AdminReferer:    "/entities/",
		},
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return NewServer(&Dependencies{
		Config:  testConfig(),
		Logger:  zap.NewNop(),
		Metrics: testMetrics,
	})
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func createLink(t *testing.T, h http.Handler, shortPath, target string, brandID int64) models.Link {
	t.Helper()
	rec := postJSON(t, h, "/entities/links", models.Link{
		BrandID:   brandID,
		Title:     "Offer",
		ShortPath: shortPath,
		TargetURL: target,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var l models.Link
	decodeJSON(t, rec, &l)
	return l
}

// bootstrap performs the script handshake: it returns the session
// cookie and a nonce valid for it.
func bootstrap(t *testing.T, h http.Handler) (*http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/track/bootstrap", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Links  []string `json:"links"`
		Assets []string `json:"assets"`
		Nonce  string   `json:"nonce"`
	}
	decodeJSON(t, rec, &payload)
	require.NotEmpty(t, payload.Nonce)

	res := rec.Result()
	defer res.Body.Close()
	for _, c := range res.Cookies() {
		if c.Name == "aff_sid" {
			return c, payload.Nonce
		}
	}
	t.Fatal("session cookie not set")
	return nil, ""
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","postgres":"memory","redis":"memory"}`, rec.Body.String())
}

func TestServer_EntityCRUD(t *testing.T) {
	h := newTestServer(t)

	link := createLink(t, h, "go/offer", "https://example.com/buy", 1)
	require.NotZero(t, link.ID)

	req := httptest.NewRequest(http.MethodGet, "/entities/links", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var links []models.Link
	decodeJSON(t, rec, &links)
	require.Len(t, links, 1)
	assert.Equal(t, "go/offer", links[0].ShortPath)

	// Short paths are normalized on write.
	rec = postJSON(t, h, "/entities/links", models.Link{Title: "Bad", ShortPath: "offer"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/entities/links/"+strconv.FormatInt(link.ID, 10), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_RedirectShortPath(t *testing.T) {
	h := newTestServer(t)
	createLink(t, h, "go/offer", "https://example.com/buy", 1)

	req := httptest.NewRequest(http.MethodGet, "/go/offer", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/buy", rec.Header().Get("Location"))
}

func TestServer_UnknownPathIs404(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/go/missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ImpressionFlow(t *testing.T) {
	h := newTestServer(t)
	createLink(t, h, "go/offer", "https://example.com/buy", 1)

	cookie, nonce := bootstrap(t, h)

	rec := postJSON(t, h, "/track/impression", map[string]interface{}{
		"nonce":          nonce,
		"short_link":     "go/offer",
		"affiliate_type": "link",
		"source_id":      42,
		"source_type":    "singular",
		"visit_type":     "referer",
	}, []*http.Cookie{cookie})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The stored context feeds the next click from the same session.
	req := httptest.NewRequest(http.MethodGet, "/go/offer", nil)
	req.AddCookie(cookie)
	clickRec := httptest.NewRecorder()
	h.ServeHTTP(clickRec, req)
	assert.Equal(t, http.StatusMovedPermanently, clickRec.Code)

	// The pages report now sees the click attributed to page 42.
	statsRec := postJSON(t, h, "/pages", map[string]interface{}{"range": "7_days", "limit": 5}, nil)
	require.Equal(t, http.StatusOK, statsRec.Code)
	var pages struct {
		Top []struct {
			ID     int64 `json:"id"`
			Clicks int64 `json:"clicks"`
		} `json:"top_pages"`
	}
	decodeJSON(t, statsRec, &pages)
	require.Len(t, pages.Top, 1)
	assert.Equal(t, int64(42), pages.Top[0].ID)
	assert.Equal(t, int64(1), pages.Top[0].Clicks)
}

func TestServer_ImpressionNotCountedForOperators(t *testing.T) {
	h := newTestServer(t)
	createLink(t, h, "go/offer", "https://example.com/buy", 1)
	cookie, nonce := bootstrap(t, h)

	data, err := json.Marshal(map[string]interface{}{
		"nonce":          nonce,
		"short_link":     "go/offer",
		"affiliate_type": "link",
		"source_id":      42,
		"source_type":    "singular",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/track/impression", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	ctx := context.WithValue(req.Context(), middleware.APIKeyContextKey, "operator-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code)

	// Nothing was written to the event log.
	statsRec := postJSON(t, h, "/pages", map[string]interface{}{"range": "7_days", "limit": 5}, nil)
	require.Equal(t, http.StatusOK, statsRec.Code)
	var pages struct {
		Top []json.RawMessage `json:"top_pages"`
	}
	decodeJSON(t, statsRec, &pages)
	assert.Empty(t, pages.Top)
}

func TestServer_ImpressionRejectsBadNonce(t *testing.T) {
	h := newTestServer(t)
	createLink(t, h, "go/offer", "https://example.com/buy", 1)
	cookie, _ := bootstrap(t, h)

	rec := postJSON(t, h, "/track/impression", map[string]interface{}{
		"nonce":          "forged",
		"short_link":     "go/offer",
		"affiliate_type": "link",
	}, []*http.Cookie{cookie})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_ImpressionRejectsUnknownShortLink(t *testing.T) {
	h := newTestServer(t)
	cookie, nonce := bootstrap(t, h)

	rec := postJSON(t, h, "/track/impression", map[string]interface{}{
		"nonce":          nonce,
		"short_link":     "go/missing",
		"affiliate_type": "link",
	}, []*http.Cookie{cookie})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_BootstrapListsShortPaths(t *testing.T) {
	h := newTestServer(t)
	createLink(t, h, "go/offer", "https://example.com/buy", 1)

	req := httptest.NewRequest(http.MethodGet, "/track/bootstrap", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Links    []string `json:"links"`
		Assets   []string `json:"assets"`
		Prefixes []string `json:"prefixes"`
		Nonce    string   `json:"nonce"`
	}
	decodeJSON(t, rec, &payload)
	assert.Equal(t, []string{"go/offer"}, payload.Links)
	assert.Empty(t, payload.Assets)
	assert.Equal(t, models.ShortPathPrefixes, payload.Prefixes)
	assert.NotEmpty(t, payload.Nonce)
}

func TestServer_CoreStats(t *testing.T) {
	h := newTestServer(t)

	rec := postJSON(t, h, "/core-stats", map[string]interface{}{"range": "30_days"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Clicks struct {
			Count int64 `json:"count"`
		} `json:"clicks"`
		Period struct {
			StartDate string `json:"start_date"`
		} `json:"period"`
	}
	decodeJSON(t, rec, &payload)
	assert.Equal(t, int64(0), payload.Clicks.Count)
	assert.NotEmpty(t, payload.Period.StartDate)
}

func TestServer_TopEndpointsUseCompatKeys(t *testing.T) {
	h := newTestServer(t)

	rec := postJSON(t, h, "/brands", map[string]interface{}{"range": "7_days", "limit": 3}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]json.RawMessage
	decodeJSON(t, rec, &payload)
	assert.Contains(t, payload, "current_top_brands")
	assert.Contains(t, payload, "old_top_brands")
	assert.Contains(t, payload, "top_brands")
	assert.Contains(t, payload, "period")
	assert.Contains(t, payload, "summery")
}
