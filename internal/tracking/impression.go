package tracking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkstudio/affitrack/internal/metrics"
	"github.com/linkstudio/affitrack/internal/models"
	"github.com/linkstudio/affitrack/internal/session"
	"github.com/linkstudio/affitrack/internal/storage"
)

// ErrUnknownShortLink is returned when an impression names a short
// path no link or asset answers to.
var ErrUnknownShortLink = errors.New("tracking: unknown short link")

// Impression is one reported placement view.
type Impression struct {
	ShortPath     string `json:"short_link"`
	AffiliateType string `json:"affiliate_type"`
	PlaceholderID int64  `json:"placeholder_id"`
	GroupID       int64  `json:"group_id"`
	SourceID      int64  `json:"source_id"`
	SourceType    string `json:"source_type"`
	VisitType     string `json:"visit_type"`
}

// Recorder turns reported impressions into event-log rows and seeds
// the session's attribution context so a follow-up click inherits
// the impression's placement data.
type Recorder struct {
	entities storage.EntityStore
	events   storage.EventLog
	sessions session.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewRecorder creates an impression recorder.
func NewRecorder(entities storage.EntityStore, events storage.EventLog, sessions session.Store, logger *zap.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		entities: entities,
		events:   events,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
	}
}

// Record validates imp, appends an impression event, and overwrites
// the session's attribution context. Later impressions in the same
// session win: only the freshest context feeds the next click.
func (rec *Recorder) Record(ctx context.Context, sessionID string, imp *Impression) error {
	if !models.ValidAffiliateType(imp.AffiliateType) {
		return fmt.Errorf("tracking: invalid affiliate type %q", imp.AffiliateType)
	}
	if imp.SourceType == "" {
		imp.SourceType = models.SourceOther
	} else if !models.ValidSourceType(imp.SourceType) {
		return fmt.Errorf("tracking: invalid source type %q", imp.SourceType)
	}
	if imp.VisitType == "" {
		imp.VisitType = models.VisitReferer
	}

	shortPath := models.NormalizeShortPath(imp.ShortPath)
	if shortPath == "" {
		return ErrUnknownShortLink
	}

	var affiliateID, brandID int64
	switch imp.AffiliateType {
	case models.AffiliateTypeAsset:
		asset, err := rec.entities.AssetByShortPath(ctx, shortPath)
		if err != nil {
			return fmt.Errorf("failed to resolve asset: %w", err)
		}
		if asset == nil {
			return ErrUnknownShortLink
		}
		affiliateID, brandID = asset.ID, asset.BrandID
	case models.AffiliateTypeLink:
		link, err := rec.entities.LinkByShortPath(ctx, shortPath)
		if err != nil {
			return fmt.Errorf("failed to resolve link: %w", err)
		}
		if link == nil {
			return ErrUnknownShortLink
		}
		affiliateID, brandID = link.ID, link.BrandID
	}

	ev := &models.TrackingEvent{
		BrandID:       brandID,
		AffiliateID:   affiliateID,
		AffiliateType: imp.AffiliateType,
		PlaceholderID: imp.PlaceholderID,
		GroupID:       imp.GroupID,
		Action:        models.ActionImpression,
		VisitType:     imp.VisitType,
		SourceID:      imp.SourceID,
		SourceType:    imp.SourceType,
	}
	if err := rec.events.Append(ctx, ev); err != nil {
		rec.metrics.RecordTrackingError("impression_append")
		return fmt.Errorf("failed to log impression: %w", err)
	}
	rec.metrics.RecordImpression(imp.AffiliateType)

	ac := &models.AttributionContext{
		AffiliateID:   affiliateID,
		AffiliateType: imp.AffiliateType,
		BrandID:       brandID,
		PlaceholderID: imp.PlaceholderID,
		GroupID:       imp.GroupID,
		SourceID:      imp.SourceID,
		SourceType:    imp.SourceType,
		VisitType:     imp.VisitType,
	}
	if err := rec.sessions.Put(ctx, sessionID, ac); err != nil {
		// The impression row is already written; a lost carrier only
		// downgrades the next click to a direct visit.
		rec.logger.Warn("failed to store attribution context", zap.Error(err))
		rec.metrics.RecordTrackingError("session_put")
	}
	return nil
}
