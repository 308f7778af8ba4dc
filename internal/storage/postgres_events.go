package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkstudio/affitrack/internal/models"
)

// PostgresEventLog implements EventLog using PostgreSQL.
type PostgresEventLog struct {
	pool *pgxpool.Pool
}

// NewPostgresEventLog creates a new PostgreSQL-backed event log.
func NewPostgresEventLog(pool *pgxpool.Pool) *PostgresEventLog {
	return &PostgresEventLog{pool: pool}
}

// EnsureEventSchema creates the tracking_events table if it does not
// exist.
func EnsureEventSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tracking_events (
			id BIGSERIAL PRIMARY KEY,
			brand_id BIGINT NOT NULL DEFAULT 0,
			affiliate_id BIGINT NOT NULL DEFAULT 0,
			affiliate_type TEXT NOT NULL,
			placeholder_id BIGINT NOT NULL DEFAULT 0,
			group_id BIGINT NOT NULL DEFAULT 0,
			action TEXT NOT NULL,
			visit_type TEXT NOT NULL,
			source_id BIGINT NOT NULL DEFAULT 0,
			source_type TEXT NOT NULL,
			entry TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure event schema: %w", err)
	}
	_, err = pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS tracking_events_entry_idx
		ON tracking_events (entry, action)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure event index: %w", err)
	}
	return nil
}

func (l *PostgresEventLog) Append(ctx context.Context, ev *models.TrackingEvent) error {
	if ev.Entry.IsZero() {
		ev.Entry = time.Now().UTC()
	}
	err := l.pool.QueryRow(ctx, `
		INSERT INTO tracking_events
			(brand_id, affiliate_id, affiliate_type, placeholder_id, group_id,
			 action, visit_type, source_id, source_type, entry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, ev.BrandID, ev.AffiliateID, ev.AffiliateType, ev.PlaceholderID, ev.GroupID,
		ev.Action, ev.VisitType, ev.SourceID, ev.SourceType, ev.Entry).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// filterClause renders f as extra AND conditions. Arguments beyond
// action/from/to start at $4.
func filterClause(f EventFilter, args []interface{}) (string, []interface{}) {
	clause := ""
	if f.BrandsOnly {
		clause += " AND brand_id > 0"
	}
	if f.PagesOnly {
		clause += " AND source_id > 0 AND source_type = 'singular'"
	}
	if f.AffiliateType != "" {
		args = append(args, f.AffiliateType)
		clause += fmt.Sprintf(" AND affiliate_type = $%d", len(args))
	}
	return clause, args
}

func (l *PostgresEventLog) DailyCounts(ctx context.Context, action string, from, to time.Time, f EventFilter) ([]DailyCount, error) {
	args := []interface{}{action, from, to}
	clause, args := filterClause(f, args)

	rows, err := l.pool.Query(ctx, `
		SELECT to_char(entry AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM tracking_events
		WHERE action = $1 AND entry BETWEEN $2 AND $3`+clause+`
		GROUP BY day
		ORDER BY day DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	var counts []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

// groupColumn maps a ranking dimension onto its grouping column and
// the condition selecting events that belong to the dimension.
func groupColumn(dimension string) (column, cond string, err error) {
	switch dimension {
	case DimensionBrand:
		return "brand_id", "brand_id > 0", nil
	case DimensionPage:
		return "source_id", "source_id > 0 AND source_type = 'singular'", nil
	case DimensionLink:
		return "affiliate_id", "affiliate_id > 0 AND affiliate_type = 'link'", nil
	case DimensionAsset:
		return "affiliate_id", "affiliate_id > 0 AND affiliate_type = 'asset'", nil
	}
	return "", "", fmt.Errorf("unknown dimension %q", dimension)
}

func (l *PostgresEventLog) TopGroups(ctx context.Context, dimension string, from, to time.Time, limit int) ([]GroupCount, error) {
	column, cond, err := groupColumn(dimension)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS group_id,
			SUM(CASE WHEN action = 'click' THEN 1 ELSE 0 END) AS clicks,
			SUM(CASE WHEN action = 'impression' THEN 1 ELSE 0 END) AS impressions
		FROM tracking_events
		WHERE entry BETWEEN $1 AND $2 AND %s
		GROUP BY %s
		ORDER BY clicks DESC, group_id ASC
		LIMIT $3
	`, column, cond, column)

	rows, err := l.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top %ss: %w", dimension, err)
	}
	defer rows.Close()

	var groups []GroupCount
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.ID, &g.Clicks, &g.Impressions); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
