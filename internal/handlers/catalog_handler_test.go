package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhavdavedev/datashelf/internal/cache"
	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// fakeStorage implements interfaces.StorageManager over in-memory slices.
type fakeStorage struct {
	nodes    []*models.NavigationNode
	products map[string]*models.Product
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{products: map[string]*models.Product{}}
}

func (f *fakeStorage) Navigation() interfaces.NavigationStorage { return &fakeNavigation{f} }
func (f *fakeStorage) Categories() interfaces.CategoryStorage   { return &fakeCategories{} }
func (f *fakeStorage) Products() interfaces.ProductStorage      { return &fakeProducts{f} }
func (f *fakeStorage) Ping(ctx context.Context) error           { return nil }
func (f *fakeStorage) Close() error                             { return nil }

type fakeNavigation struct{ f *fakeStorage }

func (s *fakeNavigation) Upsert(ctx context.Context, node *models.NavigationNode) (*models.NavigationNode, error) {
	return node, nil
}
func (s *fakeNavigation) GetByID(ctx context.Context, id string) (*models.NavigationNode, error) {
	return nil, models.NewNotFoundError("navigation node", id)
}
func (s *fakeNavigation) GetBySourceURL(ctx context.Context, sourceURL string) (*models.NavigationNode, error) {
	return nil, models.NewNotFoundError("navigation node", sourceURL)
}
func (s *fakeNavigation) List(ctx context.Context) ([]*models.NavigationNode, error) {
	return s.f.nodes, nil
}

type fakeCategories struct{}

func (s *fakeCategories) Upsert(ctx context.Context, category *models.Category) (*models.Category, error) {
	return category, nil
}
func (s *fakeCategories) GetByID(ctx context.Context, id string) (*models.Category, error) {
	return nil, models.NewNotFoundError("category", id)
}
func (s *fakeCategories) GetBySourceURL(ctx context.Context, sourceURL string) (*models.Category, error) {
	return nil, models.NewNotFoundError("category", sourceURL)
}
func (s *fakeCategories) List(ctx context.Context, query models.CategoryQuery) ([]*models.Category, int, error) {
	return []*models.Category{}, 0, nil
}

type fakeProducts struct{ f *fakeStorage }

func (s *fakeProducts) Upsert(ctx context.Context, product *models.Product) (*models.Product, error) {
	return product, nil
}
func (s *fakeProducts) GetByID(ctx context.Context, id string) (*models.Product, error) {
	if p, ok := s.f.products[id]; ok {
		return p, nil
	}
	return nil, models.NewNotFoundError("product", id)
}
func (s *fakeProducts) GetBySourceURL(ctx context.Context, sourceURL string) (*models.Product, error) {
	return nil, models.NewNotFoundError("product", sourceURL)
}
func (s *fakeProducts) List(ctx context.Context, query models.ProductQuery) ([]*models.Product, int, error) {
	out := []*models.Product{}
	for _, p := range s.f.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func newTestHandler(t *testing.T, storage *fakeStorage) *CatalogHandler {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewRedisStoreWithClient(client, common.GetLogger())
	swr := cache.NewSWR(store, common.GetLogger())

	cfg := common.NewDefaultConfig()
	return NewCatalogHandler(storage, swr, nil, cfg, common.GetLogger())
}

func testRouter(h *CatalogHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/navigation", h.GetNavigationHandler)
	r.Get("/categories", h.ListCategoriesHandler)
	r.Get("/categories/{id}", h.GetCategoryHandler)
	r.Get("/products", h.ListProductsHandler)
	r.Get("/products/{id}", h.GetProductHandler)
	return r
}

func doGet(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestGetNavigationBuildsTree(t *testing.T) {
	storage := newFakeStorage()
	rootID := uuid.New().String()
	childID := uuid.New().String()
	storage.nodes = []*models.NavigationNode{
		{ID: rootID, Title: "Electronics", SourceURL: "https://shop.example.com/electronics", LastScrapedAt: time.Now()},
		{ID: childID, Title: "Phones", SourceURL: "https://shop.example.com/phones", ParentID: &rootID, LastScrapedAt: time.Now()},
	}

	router := testRouter(newTestHandler(t, storage))
	rec, body := doGet(t, router, "/navigation")

	require.Equal(t, http.StatusOK, rec.Code)

	var tree []*models.NavigationNode
	require.NoError(t, json.Unmarshal(body["data"], &tree))
	require.Len(t, tree, 1)
	assert.Equal(t, "Electronics", tree[0].Title)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "Phones", tree[0].Children[0].Title)
}

func TestSecondReadIsCached(t *testing.T) {
	router := testRouter(newTestHandler(t, newFakeStorage()))

	_, body := doGet(t, router, "/navigation")
	var m meta
	require.NoError(t, json.Unmarshal(body["meta"], &m))
	assert.False(t, m.Cached)

	_, body = doGet(t, router, "/navigation")
	require.NoError(t, json.Unmarshal(body["meta"], &m))
	assert.True(t, m.Cached)
	assert.False(t, m.Stale)
}

func TestListProductsValidation(t *testing.T) {
	router := testRouter(newTestHandler(t, newFakeStorage()))

	tests := []struct {
		name string
		path string
	}{
		{"limit too high", "/products?limit=101"},
		{"limit zero", "/products?limit=0"},
		{"negative offset", "/products?offset=-1"},
		{"bad sort", "/products?sort=price"},
		{"bad category id", "/products?categoryId=not-a-uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := doGet(t, router, tt.path)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var label string
			require.NoError(t, json.Unmarshal(body["error"], &label))
			assert.Equal(t, "validation_error", label)
		})
	}
}

func TestGetProductByID(t *testing.T) {
	storage := newFakeStorage()
	id := uuid.New().String()
	storage.products[id] = &models.Product{
		ID:        id,
		Title:     "Widget",
		SourceURL: "https://shop.example.com/p/widget",
		ImageURLs: models.StringList{"https://cdn.example.com/products/abc.jpg"},
		Specs:     models.JSONMap{"color": "red"},
	}

	router := testRouter(newTestHandler(t, storage))

	rec, body := doGet(t, router, "/products/"+id)
	require.Equal(t, http.StatusOK, rec.Code)

	var product models.Product
	require.NoError(t, json.Unmarshal(body["data"], &product))
	assert.Equal(t, "Widget", product.Title)
	assert.Equal(t, "https://shop.example.com/p/widget", product.SourceURL)
	require.Len(t, product.ImageURLs, 1)

	assert.NotEmpty(t, rec.Header().Get("Cache-Control"))
}

func TestGetProductUnknownID(t *testing.T) {
	router := testRouter(newTestHandler(t, newFakeStorage()))

	rec, _ := doGet(t, router, "/products/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProductMalformedID(t *testing.T) {
	router := testRouter(newTestHandler(t, newFakeStorage()))

	rec, _ := doGet(t, router, "/products/123")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
