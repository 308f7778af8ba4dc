package models

import (
	"strings"
	"time"
)

// ===========================================
// BRAND
// ===========================================

// Brand groups links and assets for reporting rollups.
type Brand struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	URL              string    `json:"url,omitempty"`
	AffiliatePageURL string    `json:"affiliate_page_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ===========================================
// LINK
// ===========================================

// Link is a cloaked affiliate link: a site-local short path that
// redirects to a third-party target URL.
type Link struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brand_id"`
	Title     string    `json:"title"`
	ShortPath string    `json:"short_path"` // e.g. "go/offer-name"
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
}

// ===========================================
// ASSET
// ===========================================

// Asset is a visual placement (banner, badge) that borrows its target
// URL from a parent link. An asset without a backing link is not
// redirectable.
type Asset struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brand_id"`
	LinkID    int64     `json:"link_id"`
	Title     string    `json:"title"`
	ShortPath string    `json:"short_path"`
	CreatedAt time.Time `json:"created_at"`
}

// ShortPathPrefixes are the labels offered when composing a cloaked
// link. They are display-only; routing matches the full path.
var ShortPathPrefixes = []string{"go", "referer", "visit"}

// NormalizeShortPath trims slashes and collapses the path into the
// canonical "{prefix}/{slug}" form. It returns "" when the path has
// fewer than two segments and therefore cannot be a short path.
func NormalizeShortPath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts, "/")
}
