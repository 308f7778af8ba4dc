package storage

import (
	"context"
	"sync"
	"time"

	"github.com/linkstudio/affitrack/internal/models"
)

// MemoryEntityStore is an in-memory EntityStore for development and
// testing.
type MemoryEntityStore struct {
	mu         sync.RWMutex
	brands     map[int64]*models.Brand
	links      map[int64]*models.Link
	assets     map[int64]*models.Asset
	pageTitles map[int64]string
	nextID     int64
}

// NewMemoryEntityStore creates a new in-memory entity store.
func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{
		brands:     make(map[int64]*models.Brand),
		links:      make(map[int64]*models.Link),
		assets:     make(map[int64]*models.Asset),
		pageTitles: make(map[int64]string),
		nextID:     1,
	}
}

func (s *MemoryEntityStore) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// SetPageTitle registers a page title for Titles lookups. Pages are
// owned by the hosting site, so the store only mirrors their titles.
func (s *MemoryEntityStore) SetPageTitle(id int64, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageTitles[id] = title
}

// ===========================================
// BRANDS
// ===========================================

func (s *MemoryEntityStore) CreateBrand(ctx context.Context, b *models.Brand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.allocID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	cp := *b
	s.brands[b.ID] = &cp
	return nil
}

func (s *MemoryEntityStore) GetBrand(ctx context.Context, id int64) (*models.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.brands[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryEntityStore) UpdateBrand(ctx context.Context, b *models.Brand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.brands[b.ID]; !ok {
		return ErrNotFound
	}
	cp := *b
	s.brands[b.ID] = &cp
	return nil
}

func (s *MemoryEntityStore) DeleteBrand(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.brands, id)
	return nil
}

func (s *MemoryEntityStore) ListBrands(ctx context.Context) ([]*models.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

// ===========================================
// LINKS
// ===========================================

func (s *MemoryEntityStore) CreateLink(ctx context.Context, l *models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.allocID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	cp := *l
	s.links[l.ID] = &cp
	return nil
}

func (s *MemoryEntityStore) GetLink(ctx context.Context, id int64) (*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryEntityStore) UpdateLink(ctx context.Context, l *models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[l.ID]; !ok {
		return ErrNotFound
	}
	cp := *l
	s.links[l.ID] = &cp
	return nil
}

func (s *MemoryEntityStore) DeleteLink(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, id)
	return nil
}

func (s *MemoryEntityStore) ListLinks(ctx context.Context) ([]*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Link, 0, len(s.links))
	for _, l := range s.links {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryEntityStore) LinkByShortPath(ctx context.Context, shortPath string) (*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.links {
		if l.ShortPath == shortPath {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

// ===========================================
// ASSETS
// ===========================================

func (s *MemoryEntityStore) CreateAsset(ctx context.Context, a *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.allocID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	s.assets[a.ID] = &cp
	return nil
}

func (s *MemoryEntityStore) GetAsset(ctx context.Context, id int64) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryEntityStore) UpdateAsset(ctx context.Context, a *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	s.assets[a.ID] = &cp
	return nil
}

func (s *MemoryEntityStore) DeleteAsset(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assets, id)
	return nil
}

func (s *MemoryEntityStore) ListAssets(ctx context.Context) ([]*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryEntityStore) AssetByShortPath(ctx context.Context, shortPath string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.ShortPath == shortPath {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// ===========================================
// TITLES
// ===========================================

func (s *MemoryEntityStore) Titles(ctx context.Context, kind string, ids []int64) (map[int64]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		switch kind {
		case DimensionBrand:
			if b, ok := s.brands[id]; ok {
				out[id] = b.Name
			}
		case DimensionLink:
			if l, ok := s.links[id]; ok {
				out[id] = l.Title
			}
		case DimensionAsset:
			if a, ok := s.assets[id]; ok {
				out[id] = a.Title
			}
		case DimensionPage:
			if t, ok := s.pageTitles[id]; ok {
				out[id] = t
			}
		}
	}
	return out, nil
}
