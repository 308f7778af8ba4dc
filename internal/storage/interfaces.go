package storage

import (
	"context"
	"errors"
	"time"

	"github.com/linkstudio/affitrack/internal/models"
)

// ErrNotFound is returned by update operations on a missing row.
var ErrNotFound = errors.New("storage: not found")

// ===========================================
// ENTITY STORE
// ===========================================

// EntityStore manages brands, links and assets.
type EntityStore interface {
	CreateBrand(ctx context.Context, b *models.Brand) error
	GetBrand(ctx context.Context, id int64) (*models.Brand, error)
	UpdateBrand(ctx context.Context, b *models.Brand) error
	DeleteBrand(ctx context.Context, id int64) error
	ListBrands(ctx context.Context) ([]*models.Brand, error)

	CreateLink(ctx context.Context, l *models.Link) error
	GetLink(ctx context.Context, id int64) (*models.Link, error)
	UpdateLink(ctx context.Context, l *models.Link) error
	DeleteLink(ctx context.Context, id int64) error
	ListLinks(ctx context.Context) ([]*models.Link, error)
	LinkByShortPath(ctx context.Context, shortPath string) (*models.Link, error)

	CreateAsset(ctx context.Context, a *models.Asset) error
	GetAsset(ctx context.Context, id int64) (*models.Asset, error)
	UpdateAsset(ctx context.Context, a *models.Asset) error
	DeleteAsset(ctx context.Context, id int64) error
	ListAssets(ctx context.Context) ([]*models.Asset, error)
	AssetByShortPath(ctx context.Context, shortPath string) (*models.Asset, error)

	// Titles resolves display titles for a batch of ids of one kind
	// ("brand", "link", "asset" or "page"). Unknown ids are omitted
	// from the result.
	Titles(ctx context.Context, kind string, ids []int64) (map[int64]string, error)
}

// Dimensions accepted by EventLog.TopGroups and EntityStore.Titles.
const (
	DimensionBrand = "brand"
	DimensionPage  = "page"
	DimensionLink  = "link"
	DimensionAsset = "asset"
)

// ===========================================
// EVENT LOG
// ===========================================

// EventFilter narrows aggregation queries to a slice of the log.
type EventFilter struct {
	BrandsOnly    bool   // only events with brand_id > 0
	PagesOnly     bool   // only singular-page events with source_id > 0
	AffiliateType string // "" matches all
}

// DailyCount is one day's event count. Date is "2006-01-02".
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// GroupCount holds per-group click and impression totals for one
// ranking dimension.
type GroupCount struct {
	ID          int64 `json:"id"`
	Clicks      int64 `json:"clicks"`
	Impressions int64 `json:"impressions"`
}

// EventLog is the append-only record of clicks and impressions.
type EventLog interface {
	// Append writes one event. A zero Entry is replaced with the
	// current time.
	Append(ctx context.Context, ev *models.TrackingEvent) error

	// DailyCounts returns per-day totals for one action inside
	// [from, to], newest day first. Days with no events are omitted.
	DailyCounts(ctx context.Context, action string, from, to time.Time, f EventFilter) ([]DailyCount, error)

	// TopGroups ranks groups of one dimension by click count inside
	// [from, to], descending, ties broken by ascending id, capped at
	// limit entries.
	TopGroups(ctx context.Context, dimension string, from, to time.Time, limit int) ([]GroupCount, error)
}
