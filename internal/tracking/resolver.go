package tracking

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/linkstudio/affitrack/internal/metrics"
	"github.com/linkstudio/affitrack/internal/middleware"
	"github.com/linkstudio/affitrack/internal/models"
	"github.com/linkstudio/affitrack/internal/session"
	"github.com/linkstudio/affitrack/internal/storage"
)

// Resolver intercepts requests whose path matches a cloaked short
// path and answers them with a permanent redirect to the affiliate
// target, logging a click on the way out. Requests that match
// nothing fall through to the next handler untouched.
type Resolver struct {
	entities storage.EntityStore
	events   storage.EventLog
	sessions session.Store

	cookieName      string
	probeSignatures []string
	adminReferer    string

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// ResolverConfig carries the knobs the resolver needs.
type ResolverConfig struct {
	SessionCookieName string
	// ProbeSignatures are User-Agent substrings of link-preview and
	// URL-scanner bots. Matching requests are served the page, not
	// the redirect, and log nothing.
	ProbeSignatures []string
	// AdminReferer is a referer path substring identifying requests
	// issued from the management UI, which must not be counted.
	AdminReferer string
}

// NewResolver creates a redirect resolver.
func NewResolver(entities storage.EntityStore, events storage.EventLog, sessions session.Store, cfg ResolverConfig, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		entities:        entities,
		events:          events,
		sessions:        sessions,
		cookieName:      cfg.SessionCookieName,
		probeSignatures: cfg.ProbeSignatures,
		adminReferer:    cfg.AdminReferer,
		logger:          logger,
		metrics:         m,
	}
}

// Handler wraps next with short-path resolution.
func (rs *Resolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rs.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		shortPath := models.NormalizeShortPath(r.URL.Path)
		if shortPath == "" {
			next.ServeHTTP(w, r)
			return
		}

		target, ev := rs.resolve(r, shortPath)
		if target == "" {
			next.ServeHTTP(w, r)
			return
		}

		rs.attribute(r, ev)

		// A broken log never blocks the visitor: redirect anyway.
		if err := rs.events.Append(r.Context(), ev); err != nil {
			rs.logger.Error("failed to log click",
				zap.String("short_path", shortPath),
				zap.Error(err))
			rs.metrics.RecordTrackingError("click_append")
		} else {
			rs.metrics.RecordClick(ev.AffiliateType, ev.VisitType)
		}

		rs.metrics.RecordRedirect(ev.AffiliateType)
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// skip reports whether the request must bypass resolution entirely:
// URL-probe bots expanding link previews, clicks originating in the
// management UI, and requests carrying a validated API key. None of
// these are visitors, so none of them are counted.
func (rs *Resolver) skip(r *http.Request) bool {
	if middleware.Authenticated(r.Context()) {
		return true
	}
	ua := r.UserAgent()
	for _, sig := range rs.probeSignatures {
		if sig != "" && strings.Contains(ua, sig) {
			return true
		}
	}
	if rs.adminReferer != "" && strings.Contains(r.Referer(), rs.adminReferer) {
		return true
	}
	return false
}

// resolve maps a short path onto a redirect target. Assets are
// checked before links: an asset borrows the target of its parent
// link and is only redirectable when that parent exists with a
// non-empty target.
func (rs *Resolver) resolve(r *http.Request, shortPath string) (string, *models.TrackingEvent) {
	ctx := r.Context()

	asset, err := rs.entities.AssetByShortPath(ctx, shortPath)
	if err != nil {
		rs.logger.Error("asset lookup failed", zap.String("short_path", shortPath), zap.Error(err))
		rs.metrics.RecordTrackingError("asset_lookup")
	}
	if asset != nil && asset.LinkID > 0 {
		parent, err := rs.entities.GetLink(ctx, asset.LinkID)
		if err != nil {
			rs.logger.Error("parent link lookup failed", zap.Int64("link_id", asset.LinkID), zap.Error(err))
			rs.metrics.RecordTrackingError("link_lookup")
		}
		if parent != nil && parent.TargetURL != "" {
			return parent.TargetURL, &models.TrackingEvent{
				BrandID:       asset.BrandID,
				AffiliateID:   asset.ID,
				AffiliateType: models.AffiliateTypeAsset,
				Action:        models.ActionClick,
			}
		}
		return "", nil
	}

	link, err := rs.entities.LinkByShortPath(ctx, shortPath)
	if err != nil {
		rs.logger.Error("link lookup failed", zap.String("short_path", shortPath), zap.Error(err))
		rs.metrics.RecordTrackingError("link_lookup")
	}
	if link != nil && link.TargetURL != "" {
		return link.TargetURL, &models.TrackingEvent{
			BrandID:       link.BrandID,
			AffiliateID:   link.ID,
			AffiliateType: models.AffiliateTypeLink,
			Action:        models.ActionClick,
		}
	}
	return "", nil
}

// attribute fills the click with the session's stored impression
// context, consuming it, or with direct-visit defaults when the
// session carries nothing.
func (rs *Resolver) attribute(r *http.Request, ev *models.TrackingEvent) {
	ev.VisitType = models.VisitDirect
	ev.SourceType = models.SourceDirect

	cookie, err := r.Cookie(rs.cookieName)
	if err != nil || cookie.Value == "" {
		return
	}

	ac, err := rs.sessions.Take(r.Context(), cookie.Value)
	if err != nil {
		rs.logger.Warn("failed to read attribution context", zap.Error(err))
		rs.metrics.RecordTrackingError("session_take")
		return
	}
	if ac == nil {
		return
	}

	ev.PlaceholderID = ac.PlaceholderID
	ev.GroupID = ac.GroupID
	ev.SourceID = ac.SourceID
	if ac.SourceType != "" {
		ev.SourceType = ac.SourceType
	}
	if ac.VisitType != "" {
		ev.VisitType = ac.VisitType
	}
}
