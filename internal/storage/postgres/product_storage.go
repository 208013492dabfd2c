package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// ProductStorage implements Postgres persistence for products. Upserts
// keep category product counts consistent inside one transaction.
type ProductStorage struct {
	db     *sqlx.DB
	logger arbor.ILogger
}

// NewProductStorage creates a new product storage instance
func NewProductStorage(db *sqlx.DB, logger arbor.ILogger) *ProductStorage {
	return &ProductStorage{db: db, logger: logger}
}

const productColumns = `id, category_id, title, source_url, source_id, price, currency,
	image_urls, summary, specs, available, created_at, last_scraped_at`

const upsertProductSQL = `
	INSERT INTO products (id, category_id, title, source_url, source_id, price, currency,
		image_urls, summary, specs, available, last_scraped_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (source_url) DO UPDATE SET
		category_id = EXCLUDED.category_id,
		title = EXCLUDED.title,
		source_id = EXCLUDED.source_id,
		price = EXCLUDED.price,
		currency = EXCLUDED.currency,
		image_urls = EXCLUDED.image_urls,
		summary = EXCLUDED.summary,
		specs = EXCLUDED.specs,
		available = EXCLUDED.available,
		last_scraped_at = EXCLUDED.last_scraped_at
	RETURNING id, category_id, title, source_url, source_id, price, currency,
		image_urls, summary, specs, available, created_at, last_scraped_at`

// Recompute from the ground truth rather than increment/decrement so the
// counter self-heals after crashes between emission and completion.
const refreshProductCountSQL = `
	UPDATE categories
	SET product_count = (SELECT COUNT(*) FROM products WHERE products.category_id = categories.id)
	WHERE id = $1`

// Upsert inserts or updates a product keyed on source_url. When the write
// moves the product between categories, both counters are refreshed in
// the same transaction.
func (s *ProductStorage) Upsert(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}

	id := product.ID
	if id == "" {
		id = common.NewID()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, models.NewDatabaseError("product.upsert.begin", err)
	}
	defer tx.Rollback()

	// Previous category, if the product already exists.
	var previousCategoryID *string
	err = tx.GetContext(ctx, &previousCategoryID,
		`SELECT category_id FROM products WHERE source_url = $1`, product.SourceURL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewDatabaseError("product.upsert.lookup", err)
	}

	var stored models.Product
	err = tx.GetContext(ctx, &stored, upsertProductSQL,
		id, product.CategoryID, product.Title, product.SourceURL, product.SourceID,
		product.Price, product.Currency, product.ImageURLs, product.Summary,
		product.Specs, product.Available, time.Now().UTC())
	if err != nil {
		return nil, models.NewDatabaseError("product.upsert", err)
	}

	for _, categoryID := range touchedCategories(previousCategoryID, stored.CategoryID) {
		if _, err := tx.ExecContext(ctx, refreshProductCountSQL, categoryID); err != nil {
			return nil, models.NewDatabaseError("product.upsert.refresh_count", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, models.NewDatabaseError("product.upsert.commit", err)
	}

	s.logger.Debug().
		Str("id", stored.ID).
		Str("source_url", stored.SourceURL).
		Msg("Product upserted")
	return &stored, nil
}

// touchedCategories returns the distinct non-nil categories affected by a
// move: the previous home and the new one.
func touchedCategories(previous, current *string) []string {
	var out []string
	if previous != nil {
		out = append(out, *previous)
	}
	if current != nil && (previous == nil || *previous != *current) {
		out = append(out, *current)
	}
	return out
}

// GetByID fetches a product by primary key.
func (s *ProductStorage) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("product", id)
	}
	if err != nil {
		return nil, models.NewDatabaseError("product.get_by_id", err)
	}
	return &product, nil
}

// GetBySourceURL fetches a product by its unique source URL.
func (s *ProductStorage) GetBySourceURL(ctx context.Context, sourceURL string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		`SELECT `+productColumns+` FROM products WHERE source_url = $1`, sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("product", sourceURL)
	}
	if err != nil {
		return nil, models.NewDatabaseError("product.get_by_source_url", err)
	}
	return &product, nil
}

// List returns a page of products plus the total match count. Sorts are
// stable (id tiebreak) and price sorts always place nulls last.
func (s *ProductStorage) List(ctx context.Context, query models.ProductQuery) ([]*models.Product, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	arg := 0

	if query.CategoryID != nil {
		arg++
		where += fmt.Sprintf(" AND category_id = $%d", arg)
		args = append(args, *query.CategoryID)
	}
	if query.AvailableOnly {
		where += " AND available = true"
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products "+where, args...); err != nil {
		return nil, 0, models.NewDatabaseError("product.count", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}

	orderBy, err := orderClause(query.Sort)
	if err != nil {
		return nil, 0, err
	}

	listSQL := fmt.Sprintf("SELECT %s FROM products %s ORDER BY %s LIMIT $%d OFFSET $%d",
		productColumns, where, orderBy, arg+1, arg+2)
	args = append(args, limit, query.Offset)

	products := []*models.Product{}
	if err := s.db.SelectContext(ctx, &products, listSQL, args...); err != nil {
		return nil, 0, models.NewDatabaseError("product.list", err)
	}
	return products, total, nil
}

func orderClause(sort models.ProductSort) (string, error) {
	switch sort {
	case models.SortTitleAsc:
		return "title ASC, id ASC", nil
	case models.SortTitleDesc:
		return "title DESC, id ASC", nil
	case models.SortPriceAsc:
		return "price ASC NULLS LAST, id ASC", nil
	case models.SortPriceDesc:
		return "price DESC NULLS LAST, id ASC", nil
	case models.SortCreatedAtDesc, "":
		return "created_at DESC, id ASC", nil
	}
	return "", models.NewValidationError("sort", "unsupported sort order")
}
