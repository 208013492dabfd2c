package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/models"
)

func newTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func productRow(categoryID *string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "category_id", "title", "source_url", "source_id", "price", "currency",
		"image_urls", "summary", "specs", "available", "created_at", "last_scraped_at",
	}).AddRow(
		"p-1", categoryID, "Widget", "https://shop.example.com/p/1", nil, 19.99, "USD",
		[]byte(`["https://cdn.example.com/products/abc.jpg"]`), nil, []byte(`{"color":"red"}`),
		true, now, now,
	)
}

func TestProductUpsertRejectsInvalidRecord(t *testing.T) {
	db, _ := newTestDB(t)
	storage := NewProductStorage(db, common.GetLogger())

	_, err := storage.Upsert(context.Background(), &models.Product{
		Title:     "",
		SourceURL: "https://shop.example.com/p/1",
	})
	assert.True(t, models.IsValidationError(err))
}

func TestProductUpsertRefreshesBothCategoriesOnMove(t *testing.T) {
	db, mock := newTestDB(t)
	storage := NewProductStorage(db, common.GetLogger())

	oldCat := "cat-old"
	newCat := "cat-new"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT category_id FROM products WHERE source_url")).
		WillReturnRows(sqlmock.NewRows([]string{"category_id"}).AddRow(oldCat))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO products")).
		WillReturnRows(productRow(&newCat))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE categories")).
		WithArgs(oldCat).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE categories")).
		WithArgs(newCat).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stored, err := storage.Upsert(context.Background(), &models.Product{
		Title:      "Widget",
		SourceURL:  "https://shop.example.com/p/1",
		CategoryID: &newCat,
	})
	require.NoError(t, err)
	require.NotNil(t, stored.CategoryID)
	assert.Equal(t, newCat, *stored.CategoryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductUpsertNewRowRefreshesTargetCategory(t *testing.T) {
	db, mock := newTestDB(t)
	storage := NewProductStorage(db, common.GetLogger())

	cat := "cat-1"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT category_id FROM products WHERE source_url")).
		WillReturnRows(sqlmock.NewRows([]string{"category_id"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO products")).
		WillReturnRows(productRow(&cat))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE categories")).
		WithArgs(cat).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := storage.Upsert(context.Background(), &models.Product{
		Title:      "Widget",
		SourceURL:  "https://shop.example.com/p/1",
		CategoryID: &cat,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderClause(t *testing.T) {
	tests := []struct {
		sort models.ProductSort
		want string
	}{
		{models.SortTitleAsc, "title ASC, id ASC"},
		{models.SortTitleDesc, "title DESC, id ASC"},
		{models.SortPriceAsc, "price ASC NULLS LAST, id ASC"},
		{models.SortPriceDesc, "price DESC NULLS LAST, id ASC"},
		{models.SortCreatedAtDesc, "created_at DESC, id ASC"},
		{"", "created_at DESC, id ASC"},
	}

	for _, tt := range tests {
		got, err := orderClause(tt.sort)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := orderClause("price")
	assert.True(t, models.IsValidationError(err))
}

func TestTouchedCategories(t *testing.T) {
	a, b := "a", "b"

	assert.Empty(t, touchedCategories(nil, nil))
	assert.Equal(t, []string{"a"}, touchedCategories(&a, nil))
	assert.Equal(t, []string{"b"}, touchedCategories(nil, &b))
	assert.Equal(t, []string{"a", "b"}, touchedCategories(&a, &b))
	assert.Equal(t, []string{"a"}, touchedCategories(&a, &a))
}
