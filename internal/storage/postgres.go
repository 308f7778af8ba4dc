package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkstudio/affitrack/internal/models"
)

// PostgresEntityStore implements EntityStore using PostgreSQL.
type PostgresEntityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEntityStore creates a new PostgreSQL-backed entity store.
func NewPostgresEntityStore(pool *pgxpool.Pool) *PostgresEntityStore {
	return &PostgresEntityStore{pool: pool}
}

// EnsureEntitySchema creates the entity tables if they do not exist.
func EnsureEntitySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS brands (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			affiliate_page_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			id BIGSERIAL PRIMARY KEY,
			brand_id BIGINT NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			short_path TEXT NOT NULL,
			target_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS links_short_path_idx ON links (short_path)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id BIGSERIAL PRIMARY KEY,
			brand_id BIGINT NOT NULL DEFAULT 0,
			link_id BIGINT NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			short_path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS assets_short_path_idx ON assets (short_path)`,
		`CREATE TABLE IF NOT EXISTS page_titles (
			id BIGINT PRIMARY KEY,
			title TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure entity schema: %w", err)
		}
	}
	return nil
}

// ===========================================
// BRANDS
// ===========================================

func (s *PostgresEntityStore) CreateBrand(ctx context.Context, b *models.Brand) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO brands (name, url, affiliate_page_url)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, b.Name, b.URL, b.AffiliatePageURL).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create brand: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) GetBrand(ctx context.Context, id int64) (*models.Brand, error) {
	var b models.Brand
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, url, affiliate_page_url, created_at
		FROM brands WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.URL, &b.AffiliatePageURL, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get brand: %w", err)
	}
	return &b, nil
}

func (s *PostgresEntityStore) UpdateBrand(ctx context.Context, b *models.Brand) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE brands SET name = $2, url = $3, affiliate_page_url = $4
		WHERE id = $1
	`, b.ID, b.Name, b.URL, b.AffiliatePageURL)
	if err != nil {
		return fmt.Errorf("failed to update brand: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresEntityStore) DeleteBrand(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM brands WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete brand: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) ListBrands(ctx context.Context) ([]*models.Brand, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, url, affiliate_page_url, created_at
		FROM brands ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	defer rows.Close()

	var brands []*models.Brand
	for rows.Next() {
		var b models.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.URL, &b.AffiliatePageURL, &b.CreatedAt); err != nil {
			return nil, err
		}
		brands = append(brands, &b)
	}
	return brands, rows.Err()
}

// ===========================================
// LINKS
// ===========================================

func (s *PostgresEntityStore) CreateLink(ctx context.Context, l *models.Link) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO links (brand_id, title, short_path, target_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, l.BrandID, l.Title, l.ShortPath, l.TargetURL).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) GetLink(ctx context.Context, id int64) (*models.Link, error) {
	var l models.Link
	err := s.pool.QueryRow(ctx, `
		SELECT id, brand_id, title, short_path, target_url, created_at
		FROM links WHERE id = $1
	`, id).Scan(&l.ID, &l.BrandID, &l.Title, &l.ShortPath, &l.TargetURL, &l.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return &l, nil
}

func (s *PostgresEntityStore) UpdateLink(ctx context.Context, l *models.Link) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE links SET brand_id = $2, title = $3, short_path = $4, target_url = $5
		WHERE id = $1
	`, l.ID, l.BrandID, l.Title, l.ShortPath, l.TargetURL)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresEntityStore) DeleteLink(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM links WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) ListLinks(ctx context.Context) ([]*models.Link, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, brand_id, title, short_path, target_url, created_at
		FROM links ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.ID, &l.BrandID, &l.Title, &l.ShortPath, &l.TargetURL, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

func (s *PostgresEntityStore) LinkByShortPath(ctx context.Context, shortPath string) (*models.Link, error) {
	var l models.Link
	err := s.pool.QueryRow(ctx, `
		SELECT id, brand_id, title, short_path, target_url, created_at
		FROM links WHERE short_path = $1
	`, shortPath).Scan(&l.ID, &l.BrandID, &l.Title, &l.ShortPath, &l.TargetURL, &l.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link by short path: %w", err)
	}
	return &l, nil
}

// ===========================================
// ASSETS
// ===========================================

func (s *PostgresEntityStore) CreateAsset(ctx context.Context, a *models.Asset) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO assets (brand_id, link_id, title, short_path)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, a.BrandID, a.LinkID, a.Title, a.ShortPath).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) GetAsset(ctx context.Context, id int64) (*models.Asset, error) {
	var a models.Asset
	err := s.pool.QueryRow(ctx, `
		SELECT id, brand_id, link_id, title, short_path, created_at
		FROM assets WHERE id = $1
	`, id).Scan(&a.ID, &a.BrandID, &a.LinkID, &a.Title, &a.ShortPath, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &a, nil
}

func (s *PostgresEntityStore) UpdateAsset(ctx context.Context, a *models.Asset) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE assets SET brand_id = $2, link_id = $3, title = $4, short_path = $5
		WHERE id = $1
	`, a.ID, a.BrandID, a.LinkID, a.Title, a.ShortPath)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresEntityStore) DeleteAsset(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) ListAssets(ctx context.Context) ([]*models.Asset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, brand_id, link_id, title, short_path, created_at
		FROM assets ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.BrandID, &a.LinkID, &a.Title, &a.ShortPath, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

func (s *PostgresEntityStore) AssetByShortPath(ctx context.Context, shortPath string) (*models.Asset, error) {
	var a models.Asset
	err := s.pool.QueryRow(ctx, `
		SELECT id, brand_id, link_id, title, short_path, created_at
		FROM assets WHERE short_path = $1
	`, shortPath).Scan(&a.ID, &a.BrandID, &a.LinkID, &a.Title, &a.ShortPath, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset by short path: %w", err)
	}
	return &a, nil
}

// ===========================================
// TITLES
// ===========================================

func (s *PostgresEntityStore) Titles(ctx context.Context, kind string, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	var query string
	switch kind {
	case DimensionBrand:
		query = `SELECT id, name FROM brands WHERE id = ANY($1)`
	case DimensionLink:
		query = `SELECT id, title FROM links WHERE id = ANY($1)`
	case DimensionAsset:
		query = `SELECT id, title FROM assets WHERE id = ANY($1)`
	case DimensionPage:
		query = `SELECT id, title FROM page_titles WHERE id = ANY($1)`
	default:
		return nil, fmt.Errorf("unknown title kind %q", kind)
	}

	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s titles: %w", kind, err)
	}
	defer rows.Close()

	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, err
		}
		out[id] = title
	}
	return out, rows.Err()
}
