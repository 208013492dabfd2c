package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/cache"
	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// CatalogHandler serves the cached read API for navigation, categories,
// and products.
type CatalogHandler struct {
	storage interfaces.StorageManager
	swr     *cache.SWR
	trigger interfaces.RevalidationTrigger
	config  *common.Config
	logger  arbor.ILogger
}

// NewCatalogHandler creates the catalog read handlers. trigger may be nil
// when no revalidation bridge is configured; stale entries then refresh
// from the repository directly.
func NewCatalogHandler(storage interfaces.StorageManager, swr *cache.SWR, trigger interfaces.RevalidationTrigger,
	config *common.Config, logger arbor.ILogger) *CatalogHandler {
	return &CatalogHandler{
		storage: storage,
		swr:     swr,
		trigger: trigger,
		config:  config,
		logger:  logger,
	}
}

// GetNavigationHandler returns the hierarchical navigation tree.
func (h *CatalogHandler) GetNavigationHandler(w http.ResponseWriter, r *http.Request) {
	key := cache.Fingerprint("navigation", nil)
	ttl := time.Duration(h.config.Cache.NavigationTTL) * time.Second

	fetcher := func(ctx context.Context) ([]byte, error) {
		nodes, err := h.storage.Navigation().List(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(buildNavigationTree(nodes))
	}

	h.serveCached(w, r, key, ttl, fetcher, h.trigger)
}

// ListCategoriesHandler returns a paginated category list, optionally
// scoped to a navigation node. navId and parentId both scope by the
// navigation link; navId wins when both are present.
func (h *CatalogHandler) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	navID := r.URL.Query().Get("navId")
	if navID == "" {
		navID = r.URL.Query().Get("parentId")
	}
	if navID != "" && !common.IsUUID(navID) {
		writeDomainError(w, models.NewValidationError("navId", "navId must be a UUID"))
		return
	}

	key := cache.Fingerprint("categories", map[string]*string{
		"navId":  cache.Param(navID),
		"limit":  cache.Param(strconv.Itoa(limit)),
		"offset": cache.Param(strconv.Itoa(offset)),
	})
	ttl := time.Duration(h.config.Cache.CategoriesTTL) * time.Second

	fetcher := func(ctx context.Context) ([]byte, error) {
		query := models.CategoryQuery{Limit: limit, Offset: offset}
		if navID != "" {
			query.NavigationID = &navID
		}
		categories, total, err := h.storage.Categories().List(ctx, query)
		if err != nil {
			return nil, err
		}
		return json.Marshal(pageResult{Items: categories, Total: total, Limit: limit, Offset: offset})
	}

	h.serveCached(w, r, key, ttl, fetcher, h.trigger)
}

// GetCategoryHandler returns a single category by id. Stale entries
// refresh from the repository; there is no scrape job for a bare id.
func (h *CatalogHandler) GetCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !common.IsUUID(id) {
		writeDomainError(w, models.NewValidationError("id", "id must be a UUID"))
		return
	}

	key := cache.Fingerprint("category_detail", map[string]*string{"id": cache.Param(id)})
	ttl := time.Duration(h.config.Cache.CategoriesTTL) * time.Second

	fetcher := func(ctx context.Context) ([]byte, error) {
		category, err := h.storage.Categories().GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(category)
	}

	h.serveCached(w, r, key, ttl, fetcher, nil)
}

// ListProductsHandler returns a paginated, sorted product list.
func (h *CatalogHandler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sort, ok := models.ParseProductSort(r.URL.Query().Get("sort"))
	if !ok {
		writeDomainError(w, models.NewValidationError("sort", "unsupported sort order"))
		return
	}

	categoryID := r.URL.Query().Get("categoryId")
	if categoryID != "" && !common.IsUUID(categoryID) {
		writeDomainError(w, models.NewValidationError("categoryId", "categoryId must be a UUID"))
		return
	}

	availableOnly := r.URL.Query().Get("available") == "true"

	key := cache.Fingerprint("products", map[string]*string{
		"categoryId": cache.Param(categoryID),
		"sort":       cache.Param(string(sort)),
		"limit":      cache.Param(strconv.Itoa(limit)),
		"offset":     cache.Param(strconv.Itoa(offset)),
		"available":  cache.Param(boolParam(availableOnly)),
	})
	ttl := time.Duration(h.config.Cache.ProductsTTL) * time.Second

	fetcher := func(ctx context.Context) ([]byte, error) {
		query := models.ProductQuery{
			Limit:         limit,
			Offset:        offset,
			Sort:          sort,
			AvailableOnly: availableOnly,
		}
		if categoryID != "" {
			query.CategoryID = &categoryID
		}
		products, total, err := h.storage.Products().List(ctx, query)
		if err != nil {
			return nil, err
		}
		return json.Marshal(pageResult{Items: products, Total: total, Limit: limit, Offset: offset})
	}

	h.serveCached(w, r, key, ttl, fetcher, h.trigger)
}

// GetProductHandler returns a single product with its image URLs, specs,
// source URL, and scrape timestamp.
func (h *CatalogHandler) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !common.IsUUID(id) {
		writeDomainError(w, models.NewValidationError("id", "id must be a UUID"))
		return
	}

	key := cache.Fingerprint("product_detail", map[string]*string{"id": cache.Param(id)})
	ttl := time.Duration(h.config.Cache.ProductDetailTTL) * time.Second

	fetcher := func(ctx context.Context) ([]byte, error) {
		product, err := h.storage.Products().GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(product)
	}

	h.serveCached(w, r, key, ttl, fetcher, h.trigger)
}

// serveCached reads through the SWR cache and writes the envelope. Miss
// fetch errors translate to the taxonomy; cache failures degrade to
// direct fetches inside the SWR layer.
func (h *CatalogHandler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration,
	fetcher cache.Fetcher, trigger interfaces.RevalidationTrigger) {
	result, err := h.swr.GetWithSWR(r.Context(), key, fetcher, ttl, trigger)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Cache-Control", cache.CacheControl(ttl))
	writeRawData(w, result.Data, result.Cached, result.Stale)
}

// buildNavigationTree materializes the tree in two passes: allocate all
// nodes, then wire children onto parents.
func buildNavigationTree(nodes []*models.NavigationNode) []*models.NavigationNode {
	byID := make(map[string]*models.NavigationNode, len(nodes))
	for _, node := range nodes {
		node.Children = nil
		byID[node.ID] = node
	}

	var roots []*models.NavigationNode
	for _, node := range nodes {
		if node.ParentID != nil {
			if parent, ok := byID[*node.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

func boolParam(b bool) string {
	if b {
		return "true"
	}
	return ""
}
