package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/images"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
	"github.com/vaibhavdavedev/datashelf/internal/models"
	"github.com/vaibhavdavedev/datashelf/internal/ratelimit"
)

// fakeQueue hands out preloaded jobs and records lifecycle calls.
type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*models.Job
	enqueued  []models.JobRequest
	completed []string
	failed    map[string]string
}

func newFakeQueue(jobs ...*models.Job) *fakeQueue {
	return &fakeQueue{jobs: jobs, failed: map[string]string{}}
}

func (q *fakeQueue) Enqueue(ctx context.Context, req models.JobRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, req)
	return "child-job", nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, workerID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	job.Status = models.JobStatusRunning
	job.Attempts++
	return job, nil
}

func (q *fakeQueue) Complete(ctx context.Context, jobID string, result models.JobResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, jobID string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = jobErr.Error()
	return nil
}

func (q *fakeQueue) Requeue(ctx context.Context, jobID string) error { return nil }
func (q *fakeQueue) ReleaseWorkerLocks(ctx context.Context, workerID string) (int, error) {
	return 0, nil
}
func (q *fakeQueue) SweepExpiredLeases(ctx context.Context) (int, error) { return 0, nil }
func (q *fakeQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, errors.New("not implemented")
}
func (q *fakeQueue) Stats(ctx context.Context) (*models.JobStats, error) {
	return &models.JobStats{}, nil
}

// fakeRenderer serves canned HTML per URL.
type fakeRenderer struct {
	mu    sync.Mutex
	pages map[string]string
	err   error
	calls []string
}

func (r *fakeRenderer) Render(ctx context.Context, targetURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, targetURL)
	if r.err != nil {
		return "", r.err
	}
	if html, ok := r.pages[targetURL]; ok {
		return html, nil
	}
	return "", errors.New("page not found")
}

func (r *fakeRenderer) Close() error { return nil }

// memoryStorage captures upserts for assertions.
type memoryStorage struct {
	mu         sync.Mutex
	nodes      map[string]*models.NavigationNode
	categories map[string]*models.Category
	products   map[string]*models.Product
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		nodes:      map[string]*models.NavigationNode{},
		categories: map[string]*models.Category{},
		products:   map[string]*models.Product{},
	}
}

func (s *memoryStorage) Navigation() interfaces.NavigationStorage { return &memNav{s} }
func (s *memoryStorage) Categories() interfaces.CategoryStorage   { return &memCat{s} }
func (s *memoryStorage) Products() interfaces.ProductStorage      { return &memProd{s} }
func (s *memoryStorage) Ping(ctx context.Context) error           { return nil }
func (s *memoryStorage) Close() error                             { return nil }

type memNav struct{ s *memoryStorage }

func (m *memNav) Upsert(ctx context.Context, node *models.NavigationNode) (*models.NavigationNode, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if existing, ok := m.s.nodes[node.SourceURL]; ok {
		node.ID = existing.ID
	} else if node.ID == "" {
		node.ID = common.NewID()
	}
	m.s.nodes[node.SourceURL] = node
	return node, nil
}
func (m *memNav) GetByID(ctx context.Context, id string) (*models.NavigationNode, error) {
	return nil, models.NewNotFoundError("navigation node", id)
}
func (m *memNav) GetBySourceURL(ctx context.Context, sourceURL string) (*models.NavigationNode, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if node, ok := m.s.nodes[sourceURL]; ok {
		return node, nil
	}
	return nil, models.NewNotFoundError("navigation node", sourceURL)
}
func (m *memNav) List(ctx context.Context) ([]*models.NavigationNode, error) { return nil, nil }

type memCat struct{ s *memoryStorage }

func (m *memCat) Upsert(ctx context.Context, category *models.Category) (*models.Category, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if existing, ok := m.s.categories[category.SourceURL]; ok {
		category.ID = existing.ID
	} else if category.ID == "" {
		category.ID = common.NewID()
	}
	m.s.categories[category.SourceURL] = category
	return category, nil
}
func (m *memCat) GetByID(ctx context.Context, id string) (*models.Category, error) {
	return nil, models.NewNotFoundError("category", id)
}
func (m *memCat) GetBySourceURL(ctx context.Context, sourceURL string) (*models.Category, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if category, ok := m.s.categories[sourceURL]; ok {
		return category, nil
	}
	return nil, models.NewNotFoundError("category", sourceURL)
}
func (m *memCat) List(ctx context.Context, query models.CategoryQuery) ([]*models.Category, int, error) {
	return nil, 0, nil
}

type memProd struct{ s *memoryStorage }

func (m *memProd) Upsert(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if product.ID == "" {
		product.ID = common.NewID()
	}
	m.s.products[product.SourceURL] = product
	return product, nil
}
func (m *memProd) GetByID(ctx context.Context, id string) (*models.Product, error) {
	return nil, models.NewNotFoundError("product", id)
}
func (m *memProd) GetBySourceURL(ctx context.Context, sourceURL string) (*models.Product, error) {
	return nil, models.NewNotFoundError("product", sourceURL)
}
func (m *memProd) List(ctx context.Context, query models.ProductQuery) ([]*models.Product, int, error) {
	return nil, 0, nil
}

// nullBlobStore satisfies the pipeline; product fixtures carry no images.
type nullBlobStore struct{}

func (nullBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "https://cdn.example.com/" + key, nil
}
func (nullBlobStore) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func newTestPool(queue *fakeQueue, storage *memoryStorage, renderer *fakeRenderer, limits ratelimit.Limits) *Pool {
	cfg := common.NewDefaultConfig()
	logger := common.GetLogger()
	pipeline := images.NewPipeline(nullBlobStore{}, cfg, logger)
	limiter := ratelimit.NewSlidingWindow(limits)
	return NewPool(queue, storage, renderer, pipeline, limiter, cfg, logger)
}

func wideOpen() ratelimit.Limits {
	return ratelimit.Limits{PerMinute: 1000, PerHour: 10000}
}

func TestProcessNavigationJobEmitsCategoryChildren(t *testing.T) {
	const html = `<nav><ul>
		<li><a href="/electronics">Electronics</a>
			<ul><li><a href="/electronics/phones">Phones</a></li></ul>
		</li>
	</ul></nav>`

	job := &models.Job{
		ID:        "nav-job",
		Type:      models.JobTypeNavigation,
		TargetURL: "https://shop.example.com/",
		Metadata:  models.JSONMap{},
	}
	queue := newFakeQueue(job)
	storage := newMemoryStorage()
	renderer := &fakeRenderer{pages: map[string]string{"https://shop.example.com/": html}}

	pool := newTestPool(queue, storage, renderer, wideOpen())
	pool.Process("worker-1")

	assert.Equal(t, []string{"nav-job"}, queue.completed)
	assert.Empty(t, queue.failed)

	// Both nodes stored, child wired to its parent.
	require.Len(t, storage.nodes, 2)
	parent := storage.nodes["https://shop.example.com/electronics"]
	child := storage.nodes["https://shop.example.com/electronics/phones"]
	require.NotNil(t, parent)
	require.NotNil(t, child)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	// Leaf link became a category job.
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "category", queue.enqueued[0].Type)
	assert.Equal(t, "https://shop.example.com/electronics/phones", queue.enqueued[0].TargetURL)
}

func TestProcessCategoryJobEmitsProductChildren(t *testing.T) {
	const html = `<h1>Phones</h1>
		<div class="product-card"><a href="/product/1">One</a></div>
		<div class="product-card"><a href="/product/2">Two</a></div>`

	job := &models.Job{
		ID:        "cat-job",
		Type:      models.JobTypeCategory,
		TargetURL: "https://shop.example.com/electronics/phones",
		Metadata:  models.JSONMap{},
	}
	queue := newFakeQueue(job)
	storage := newMemoryStorage()
	renderer := &fakeRenderer{pages: map[string]string{job.TargetURL: html}}

	pool := newTestPool(queue, storage, renderer, wideOpen())
	pool.Process("worker-1")

	assert.Equal(t, []string{"cat-job"}, queue.completed)

	category := storage.categories[job.TargetURL]
	require.NotNil(t, category)
	assert.Equal(t, "Phones", category.Title)

	require.Len(t, queue.enqueued, 2)
	assert.Equal(t, "product", queue.enqueued[0].Type)
	assert.Equal(t, "https://shop.example.com/product/1", queue.enqueued[0].TargetURL)
	assert.Equal(t, job.TargetURL, queue.enqueued[0].Metadata["category_url"])
}

func TestProcessProductJobResolvesCategory(t *testing.T) {
	const html = `<h1>Phone One</h1><span class="price">$299.00 USD</span>`

	categoryURL := "https://shop.example.com/electronics/phones"
	job := &models.Job{
		ID:        "prod-job",
		Type:      models.JobTypeProduct,
		TargetURL: "https://shop.example.com/product/1",
		Metadata:  models.JSONMap{"category_url": categoryURL},
	}
	queue := newFakeQueue(job)
	storage := newMemoryStorage()
	storage.categories[categoryURL] = &models.Category{
		ID:        "cat-1",
		Title:     "Phones",
		SourceURL: categoryURL,
	}
	renderer := &fakeRenderer{pages: map[string]string{job.TargetURL: html}}

	pool := newTestPool(queue, storage, renderer, wideOpen())
	pool.Process("worker-1")

	assert.Equal(t, []string{"prod-job"}, queue.completed)

	product := storage.products[job.TargetURL]
	require.NotNil(t, product)
	assert.Equal(t, "Phone One", product.Title)
	require.NotNil(t, product.Price)
	assert.InDelta(t, 299.0, *product.Price, 0.001)
	require.NotNil(t, product.CategoryID)
	assert.Equal(t, "cat-1", *product.CategoryID)
}

func TestRateLimitDeniedReturnsJobToQueue(t *testing.T) {
	job := &models.Job{
		ID:        "job-1",
		Type:      models.JobTypeProduct,
		TargetURL: "https://shop.example.com/product/1",
		Metadata:  models.JSONMap{},
	}
	queue := newFakeQueue(job)
	renderer := &fakeRenderer{}

	// Zero budget: the permit is always denied.
	pool := newTestPool(queue, newMemoryStorage(), renderer, ratelimit.Limits{PerMinute: 0, PerHour: 0})
	pool.Process("worker-1")

	assert.Empty(t, queue.completed)
	assert.Contains(t, queue.failed["job-1"], "rate limit")
	assert.Empty(t, renderer.calls)
}

func TestRenderFailureFailsJob(t *testing.T) {
	job := &models.Job{
		ID:        "job-1",
		Type:      models.JobTypeProduct,
		TargetURL: "https://shop.example.com/product/1",
		Metadata:  models.JSONMap{},
	}
	queue := newFakeQueue(job)
	renderer := &fakeRenderer{err: errors.New("navigation timeout")}

	pool := newTestPool(queue, newMemoryStorage(), renderer, wideOpen())
	pool.Process("worker-1")

	assert.Empty(t, queue.completed)
	assert.Contains(t, queue.failed["job-1"], "render failed")
}

func TestEmptyQueueIsNotAnError(t *testing.T) {
	queue := newFakeQueue()
	pool := newTestPool(queue, newMemoryStorage(), &fakeRenderer{}, wideOpen())

	pool.Process("worker-1")

	assert.Empty(t, queue.completed)
	assert.Empty(t, queue.failed)
}
