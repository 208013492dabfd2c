package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// CategoryStorage implements Postgres persistence for categories
type CategoryStorage struct {
	db     *sqlx.DB
	logger arbor.ILogger
}

// NewCategoryStorage creates a new category storage instance
func NewCategoryStorage(db *sqlx.DB, logger arbor.ILogger) *CategoryStorage {
	return &CategoryStorage{db: db, logger: logger}
}

const upsertCategorySQL = `
	INSERT INTO categories (id, navigation_id, title, source_url, last_scraped_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (source_url) DO UPDATE SET
		navigation_id = EXCLUDED.navigation_id,
		title = EXCLUDED.title,
		last_scraped_at = EXCLUDED.last_scraped_at
	RETURNING id, navigation_id, title, source_url, product_count, last_scraped_at`

// Upsert inserts or updates a category keyed on source_url. The stored
// product_count is preserved across updates; only product writes move it.
func (s *CategoryStorage) Upsert(ctx context.Context, category *models.Category) (*models.Category, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}

	id := category.ID
	if id == "" {
		id = common.NewID()
	}

	var stored models.Category
	err := s.db.GetContext(ctx, &stored, upsertCategorySQL,
		id, category.NavigationID, category.Title, category.SourceURL, time.Now().UTC())
	if err != nil {
		return nil, models.NewDatabaseError("category.upsert", err)
	}

	s.logger.Debug().
		Str("id", stored.ID).
		Str("source_url", stored.SourceURL).
		Msg("Category upserted")
	return &stored, nil
}

// GetByID fetches a category by primary key.
func (s *CategoryStorage) GetByID(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	err := s.db.GetContext(ctx, &category,
		`SELECT id, navigation_id, title, source_url, product_count, last_scraped_at
		 FROM categories WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("category", id)
	}
	if err != nil {
		return nil, models.NewDatabaseError("category.get_by_id", err)
	}
	return &category, nil
}

// GetBySourceURL fetches a category by its unique source URL.
func (s *CategoryStorage) GetBySourceURL(ctx context.Context, sourceURL string) (*models.Category, error) {
	var category models.Category
	err := s.db.GetContext(ctx, &category,
		`SELECT id, navigation_id, title, source_url, product_count, last_scraped_at
		 FROM categories WHERE source_url = $1`, sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("category", sourceURL)
	}
	if err != nil {
		return nil, models.NewDatabaseError("category.get_by_source_url", err)
	}
	return &category, nil
}

// List returns a page of categories plus the total match count. Ordering
// is by title with id as tiebreak so pages are disjoint.
func (s *CategoryStorage) List(ctx context.Context, query models.CategoryQuery) ([]*models.Category, int, error) {
	where := ""
	args := []interface{}{}
	if query.NavigationID != nil {
		where = "WHERE navigation_id = $1"
		args = append(args, *query.NavigationID)
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM categories " + where
	if err := s.db.GetContext(ctx, &total, countSQL, args...); err != nil {
		return nil, 0, models.NewDatabaseError("category.count", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, query.Offset)

	listSQL := `SELECT id, navigation_id, title, source_url, product_count, last_scraped_at
		 FROM categories ` + where
	if query.NavigationID != nil {
		listSQL += " ORDER BY title, id LIMIT $2 OFFSET $3"
	} else {
		listSQL += " ORDER BY title, id LIMIT $1 OFFSET $2"
	}

	categories := []*models.Category{}
	if err := s.db.SelectContext(ctx, &categories, listSQL, args...); err != nil {
		return nil, 0, models.NewDatabaseError("category.list", err)
	}
	return categories, total, nil
}
