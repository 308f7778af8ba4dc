package models

import (
	"time"
)

// ===========================================
// TRACKING EVENT
// ===========================================

// Actions.
const (
	ActionClick      = "click"
	ActionImpression = "impression"
)

// Affiliate types.
const (
	AffiliateTypeLink  = "link"
	AffiliateTypeAsset = "asset"
)

// Visit types.
const (
	VisitDirect  = "direct"
	VisitReferer = "referer"
)

// Source types classify the page an event originated from.
const (
	SourceSingular = "singular"
	SourceArchive  = "archive"
	SourceUser     = "user"
	SourceOther    = "other"
	SourceDirect   = "direct"
)

// TrackingEvent is one row of the append-only event log. Rows are
// never updated or deleted by the server; Entry is assigned by the
// log at write time.
type TrackingEvent struct {
	ID            int64     `json:"id"`
	BrandID       int64     `json:"brand_id"`
	AffiliateID   int64     `json:"affiliate_id"`
	AffiliateType string    `json:"affiliate_type"` // link | asset
	PlaceholderID int64     `json:"placeholder_id"`
	GroupID       int64     `json:"group_id"`
	Action        string    `json:"action"`     // click | impression
	VisitType     string    `json:"visit_type"` // direct | referer
	SourceID      int64     `json:"source_id"`
	SourceType    string    `json:"source_type"`
	Entry         time.Time `json:"entry"`
}

// ValidAffiliateType reports whether t is one of the enumerated
// affiliate types.
func ValidAffiliateType(t string) bool {
	return t == AffiliateTypeLink || t == AffiliateTypeAsset
}

// ValidSourceType reports whether t is one of the enumerated source
// types.
func ValidSourceType(t string) bool {
	switch t {
	case SourceSingular, SourceArchive, SourceUser, SourceOther, SourceDirect:
		return true
	}
	return false
}

// ===========================================
// ATTRIBUTION CONTEXT
// ===========================================

// AttributionContext carries impression context forward to the next
// click from the same visitor session. It is written by the
// impression recorder and consumed (deleted) by the redirect
// resolver; sessions never observe each other's context.
type AttributionContext struct {
	AffiliateID   int64  `json:"affiliate_id"`
	AffiliateType string `json:"affiliate_type"`
	BrandID       int64  `json:"brand_id"`
	PlaceholderID int64  `json:"placeholder_id"`
	GroupID       int64  `json:"group_id"`
	SourceID      int64  `json:"source_id"`
	SourceType    string `json:"source_type"`
	VisitType     string `json:"visit_type"`
}
