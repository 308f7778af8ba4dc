package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linkstudio/affitrack/internal/analytics"
	"github.com/linkstudio/affitrack/internal/config"
	"github.com/linkstudio/affitrack/internal/database"
	"github.com/linkstudio/affitrack/internal/metrics"
	"github.com/linkstudio/affitrack/internal/middleware"
	"github.com/linkstudio/affitrack/internal/models"
	"github.com/linkstudio/affitrack/internal/session"
	"github.com/linkstudio/affitrack/internal/storage"
	"github.com/linkstudio/affitrack/internal/tracking"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and tracking services.
type Server struct {
	entities storage.EntityStore
	events   storage.EventLog
	sessions session.Store
	recorder *tracking.Recorder
	engine   *analytics.Engine
	nonces   *tracking.NonceIssuer
	db       *database.PostgresDB
	redis    *database.RedisDB
	logger   *zap.Logger
	config   *config.Config
	metrics  *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
// The redirect resolver wraps the mux, so any path that matches a
// cloaked short path is answered with a redirect before routing.
func NewServer(deps *Dependencies) http.Handler {
	var entities storage.EntityStore
	var events storage.EventLog

	if deps.DB != nil {
		entities = storage.NewPostgresEntityStore(deps.DB.Pool)
		events = storage.NewPostgresEventLog(deps.DB.Pool)
	} else {
		entities = storage.NewMemoryEntityStore()
		events = storage.NewMemoryEventLog()
	}

	var sessions session.Store
	if deps.Redis != nil {
		sessions = session.NewRedisStore(deps.Redis.Client, deps.Config.Session.TTL)
	} else {
		sessions = session.NewMemoryStore(deps.Config.Session.TTL)
	}

	nonces := tracking.NewNonceIssuer(deps.Config.Nonce.Secret, deps.Config.Nonce.Interval)
	recorder := tracking.NewRecorder(entities, events, sessions, deps.Logger, deps.Metrics)
	engine := analytics.NewEngine(events, entities, deps.Logger, deps.Metrics)

	s := &Server{
		entities: entities,
		events:   events,
		sessions: sessions,
		recorder: recorder,
		engine:   engine,
		nonces:   nonces,
		db:       deps.DB,
		redis:    deps.Redis,
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Public tracking surface
	mux.HandleFunc("/track/bootstrap", s.handleTrackBootstrap)
	mux.HandleFunc("/track/impression", s.handleTrackImpression)

	// Analytics
	mux.HandleFunc("/core-stats", s.handleCoreStats)
	mux.HandleFunc("/brands", s.handleTop(storage.DimensionBrand, "brands"))
	mux.HandleFunc("/pages", s.handleTop(storage.DimensionPage, "pages"))
	mux.HandleFunc("/links", s.handleTop(storage.DimensionLink, "links"))
	mux.HandleFunc("/assets", s.handleTop(storage.DimensionAsset, "assets"))

	// Entity management
	mux.HandleFunc("/entities/brands", s.handleBrands)
	mux.HandleFunc("/entities/brands/", s.handleBrandByID)
	mux.HandleFunc("/entities/links", s.handleLinks)
	mux.HandleFunc("/entities/links/", s.handleLinkByID)
	mux.HandleFunc("/entities/assets", s.handleAssets)
	mux.HandleFunc("/entities/assets/", s.handleAssetByID)

	resolver := tracking.NewResolver(entities, events, sessions, tracking.ResolverConfig{
		SessionCookieName: deps.Config.Session.CookieName,
		ProbeSignatures:   deps.Config.Tracking.ProbeSignatures,
		AdminReferer:      deps.Config.Tracking.AdminReferer,
	}, deps.Logger, deps.Metrics)

	return resolver.Handler(mux)
}

// ---- Health Check ----

// handleHealth pings the configured backends. A server running on the
// in-memory fallbacks reports them as such and still counts as
// healthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":   "ok",
		"postgres": "memory",
		"redis":    "memory",
	}

	if s.db != nil {
		status["postgres"] = "ok"
		if err := s.db.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["postgres"] = "unreachable"
		}
	}
	if s.redis != nil {
		status["redis"] = "ok"
		if err := s.redis.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["redis"] = "unreachable"
		}
	}

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	s.jsonResponseStatus(w, code, status)
}

// ---- Sessions ----

// sessionID returns the visitor's session id, minting a new one and
// setting the cookie when the request carries none.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.config.Session.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.config.Session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// ---- Tracking ----

// handleTrackBootstrap hands the page script everything it needs to
// report impressions: the known short paths and a nonce bound to the
// visitor's session.
func (s *Server) handleTrackBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := s.sessionID(w, r)

	links, err := s.entities.ListLinks(r.Context())
	if err != nil {
		s.logger.Error("failed to list links", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	assets, err := s.entities.ListAssets(r.Context())
	if err != nil {
		s.logger.Error("failed to list assets", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	linkPaths := make([]string, 0, len(links))
	for _, l := range links {
		linkPaths = append(linkPaths, l.ShortPath)
	}
	assetPaths := make([]string, 0, len(assets))
	for _, a := range assets {
		assetPaths = append(assetPaths, a.ShortPath)
	}

	s.jsonResponse(w, map[string]interface{}{
		"links":    linkPaths,
		"assets":   assetPaths,
		"prefixes": models.ShortPathPrefixes,
		"nonce":    s.nonces.Issue(sessionID),
	})
}

type impressionRequest struct {
	Nonce string `json:"nonce"`
	tracking.Impression
}

// handleTrackImpression records one placement view. Clients report
// each tracked element at most once per page view, when it first
// becomes visible.
func (s *Server) handleTrackImpression(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req impressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	sessionID := s.sessionID(w, r)
	if !s.nonces.Verify(sessionID, req.Nonce) {
		s.metrics.RecordNonceFailure()
		s.errorResponse(w, "invalid nonce", http.StatusForbidden)
		return
	}

	// Authenticated callers are operators, not visitors: echo the
	// payload back without counting it.
	if middleware.Authenticated(r.Context()) {
		s.jsonResponse(w, req.Impression)
		return
	}

	imp := req.Impression
	if err := s.recorder.Record(r.Context(), sessionID, &imp); err != nil {
		switch {
		case errors.Is(err, tracking.ErrUnknownShortLink):
			s.errorResponse(w, "unknown short link", http.StatusBadRequest)
		case strings.Contains(err.Error(), "invalid"):
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
		default:
			s.logger.Error("failed to record impression", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.jsonResponse(w, imp)
}

// ---- Analytics ----

type statsRequest struct {
	Range string `json:"range"`
	Limit int    `json:"limit"`
}

func (s *Server) handleCoreStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	summary, err := s.engine.Summarize(r.Context(), req.Range, storage.EventFilter{})
	if err != nil {
		s.logger.Error("failed to build summary", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, summary)
}

// handleTop builds the ranking handler for one dimension. The
// "summery" response key is kept for compatibility with existing
// dashboard clients.
func (s *Server) handleTop(dimension, plural string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req statsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Limit <= 0 {
			req.Limit = 5
		}

		report, err := s.engine.Top(r.Context(), dimension, req.Range, req.Limit)
		if err != nil {
			s.logger.Error("failed to build top report",
				zap.String("dimension", dimension),
				zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}

		s.jsonResponse(w, map[string]interface{}{
			"current_top_" + plural: report.Current,
			"old_top_" + plural:     report.Old,
			"top_" + plural:         report.Top,
			"period":                report.Period,
			"summery":               report.Summary,
		})
	}
}

// ---- Entity management ----

func (s *Server) handleBrands(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		brands, err := s.entities.ListBrands(r.Context())
		if err != nil {
			s.logger.Error("failed to list brands", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, brands)
	case http.MethodPost:
		var b models.Brand
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if b.Name == "" {
			s.errorResponse(w, "name is required", http.StatusBadRequest)
			return
		}
		b.ID = 0
		if err := s.entities.CreateBrand(r.Context(), &b); err != nil {
			s.logger.Error("failed to create brand", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponseStatus(w, http.StatusCreated, b)
	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleBrandByID(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "/entities/brands/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := s.entities.GetBrand(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to get brand", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		if b == nil {
			s.errorResponse(w, "not found", http.StatusNotFound)
			return
		}
		s.jsonResponse(w, b)
	case http.MethodPut:
		var b models.Brand
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		b.ID = id
		if err := s.entities.UpdateBrand(r.Context(), &b); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.errorResponse(w, "not found", http.StatusNotFound)
				return
			}
			s.logger.Error("failed to update brand", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, b)
	case http.MethodDelete:
		if err := s.entities.DeleteBrand(r.Context(), id); err != nil {
			s.logger.Error("failed to delete brand", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		links, err := s.entities.ListLinks(r.Context())
		if err != nil {
			s.logger.Error("failed to list links", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, links)
	case http.MethodPost:
		var l models.Link
		if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !s.normalizeLink(w, &l) {
			return
		}
		l.ID = 0
		if err := s.entities.CreateLink(r.Context(), &l); err != nil {
			s.logger.Error("failed to create link", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponseStatus(w, http.StatusCreated, l)
	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLinkByID(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "/entities/links/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		l, err := s.entities.GetLink(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to get link", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		if l == nil {
			s.errorResponse(w, "not found", http.StatusNotFound)
			return
		}
		s.jsonResponse(w, l)
	case http.MethodPut:
		var l models.Link
		if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !s.normalizeLink(w, &l) {
			return
		}
		l.ID = id
		if err := s.entities.UpdateLink(r.Context(), &l); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.errorResponse(w, "not found", http.StatusNotFound)
				return
			}
			s.logger.Error("failed to update link", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, l)
	case http.MethodDelete:
		if err := s.entities.DeleteLink(r.Context(), id); err != nil {
			s.logger.Error("failed to delete link", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		assets, err := s.entities.ListAssets(r.Context())
		if err != nil {
			s.logger.Error("failed to list assets", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, assets)
	case http.MethodPost:
		var a models.Asset
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !s.normalizeAsset(w, &a) {
			return
		}
		a.ID = 0
		if err := s.entities.CreateAsset(r.Context(), &a); err != nil {
			s.logger.Error("failed to create asset", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponseStatus(w, http.StatusCreated, a)
	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAssetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "/entities/assets/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		a, err := s.entities.GetAsset(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to get asset", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		if a == nil {
			s.errorResponse(w, "not found", http.StatusNotFound)
			return
		}
		s.jsonResponse(w, a)
	case http.MethodPut:
		var a models.Asset
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if !s.normalizeAsset(w, &a) {
			return
		}
		a.ID = id
		if err := s.entities.UpdateAsset(r.Context(), &a); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.errorResponse(w, "not found", http.StatusNotFound)
				return
			}
			s.logger.Error("failed to update asset", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, a)
	case http.MethodDelete:
		if err := s.entities.DeleteAsset(r.Context(), id); err != nil {
			s.logger.Error("failed to delete asset", zap.Int64("id", id), zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Helpers ----

func (s *Server) normalizeLink(w http.ResponseWriter, l *models.Link) bool {
	if l.Title == "" {
		s.errorResponse(w, "title is required", http.StatusBadRequest)
		return false
	}
	l.ShortPath = models.NormalizeShortPath(l.ShortPath)
	if l.ShortPath == "" {
		s.errorResponse(w, "short_path must have a prefix and a slug", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) normalizeAsset(w http.ResponseWriter, a *models.Asset) bool {
	if a.Title == "" {
		s.errorResponse(w, "title is required", http.StatusBadRequest)
		return false
	}
	a.ShortPath = models.NormalizeShortPath(a.ShortPath)
	if a.ShortPath == "" {
		s.errorResponse(w, "short_path must have a prefix and a slug", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.errorResponse(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonResponseStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
