// Package scraper runs the worker pool that leases jobs, renders catalog
// pages, extracts records, and persists them.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/images"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
	"github.com/vaibhavdavedev/datashelf/internal/models"
	"github.com/vaibhavdavedev/datashelf/internal/scraper/extract"
)

// jobTimeout bounds a single job execution including pagination.
const jobTimeout = 5 * time.Minute

// childJobPriority is the priority for discovered category and product
// jobs; organic crawl expansion yields to everything else.
const childJobPriority = 1

// Pool runs N scraper workers against the shared job queue. The queue is
// the only coordination point between workers.
type Pool struct {
	queue    interfaces.JobQueue
	storage  interfaces.StorageManager
	renderer interfaces.Renderer
	images   *images.Pipeline
	limiter  interfaces.RateLimiter
	config   *common.Config
	logger   arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool wires a worker pool over its collaborators.
func NewPool(queue interfaces.JobQueue, storage interfaces.StorageManager, renderer interfaces.Renderer,
	imagePipeline *images.Pipeline, limiter interfaces.RateLimiter, config *common.Config, logger arbor.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:    queue,
		storage:  storage,
		renderer: renderer,
		images:   imagePipeline,
		limiter:  limiter,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	n := p.config.Worker.PoolSize
	if n <= 0 {
		n = 4
	}

	p.logger.Info().Int("workers", n).Msg("Starting scraper worker pool")
	for i := 0; i < n; i++ {
		workerID := common.NewWorkerID()
		p.wg.Add(1)
		go p.run(workerID)
	}
}

// Stop drains the pool: no new dequeues, in-flight jobs finish at their
// next boundary, and remaining leases are released by each worker.
func (p *Pool) Stop() {
	p.logger.Info().Msg("Stopping scraper worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Scraper worker pool stopped")
}

// run is the worker loop: one Process pass per iteration until shutdown.
func (p *Pool) run(workerID string) {
	defer p.wg.Done()
	defer p.releaseLocks(workerID)

	p.logger.Debug().Str("worker_id", workerID).Msg("Worker started")

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Str("worker_id", workerID).Msg("Worker stopping")
			return
		default:
			p.Process(workerID)
		}
	}
}

// releaseLocks returns this worker's leases on shutdown so unfinished jobs
// requeue immediately instead of waiting out the lease TTL.
func (p *Pool) releaseLocks(workerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.queue.ReleaseWorkerLocks(ctx, workerID); err != nil {
		p.logger.Error().Err(err).Str("worker_id", workerID).Msg("Failed to release worker locks")
	}
}

// Process executes a single worker pass: lease, rate-gate, render,
// extract, persist, ack. It sleeps the poll interval when the queue is
// empty.
func (p *Pool) Process(workerID string) {
	job, err := p.queue.Dequeue(p.ctx, workerID)
	if err != nil {
		p.logger.Error().Err(err).Str("worker_id", workerID).Msg("Dequeue failed")
		p.sleep(p.config.PollInterval())
		return
	}
	if job == nil {
		p.sleep(p.config.PollInterval())
		return
	}

	host := common.HostKey(job.TargetURL)
	if host == "" {
		p.failJob(job, fmt.Errorf("target URL %q has no host", job.TargetURL))
		return
	}

	// The attempt increment from Dequeue is the only cost of a denied
	// permit; the job goes straight back to queued unless that was its
	// final attempt, in which case Fail marks it failed.
	if !p.limiter.Allowed(host) {
		p.failJob(job, fmt.Errorf("rate limit reached for host %s", host))
		p.sleep(p.config.PollInterval())
		return
	}
	p.limiter.Record(host)

	p.logger.Info().
		Str("worker_id", workerID).
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("target_url", job.TargetURL).
		Int("attempt", job.Attempts).
		Msg("Processing job")

	started := time.Now()
	jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	itemsProcessed, err := p.execute(jobCtx, job)
	if err != nil {
		p.failJob(job, err)
		return
	}

	result := models.JobResult{
		ItemsProcessed: itemsProcessed,
		DurationMs:     time.Since(started).Milliseconds(),
	}
	if err := p.queue.Complete(jobCtx, job.ID, result); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to complete job")
	}
}

func (p *Pool) execute(ctx context.Context, job *models.Job) (int, error) {
	html, err := p.renderer.Render(ctx, job.TargetURL)
	if err != nil {
		return 0, fmt.Errorf("render failed: %w", err)
	}

	switch job.Type {
	case models.JobTypeNavigation:
		return p.processNavigation(ctx, job, html)
	case models.JobTypeCategory:
		return p.processCategory(ctx, job, html)
	case models.JobTypeProduct:
		return p.processProduct(ctx, job, html)
	default:
		return 0, fmt.Errorf("unknown job type %q", job.Type)
	}
}

// processNavigation upserts the navigation tree and emits a category job
// for every leaf link. Children are enqueued before the parent completes;
// a crash in between just reruns the idempotent parent.
func (p *Pool) processNavigation(ctx context.Context, job *models.Job, html string) (int, error) {
	items, err := extract.ParseNavigation(html)
	if err != nil {
		return 0, fmt.Errorf("navigation extraction failed: %w", err)
	}

	// Items arrive parents-first, so resolved ids are available when the
	// children need them.
	idByURL := map[string]string{}
	processed := 0

	for _, item := range items {
		absolute, err := common.ResolveURL(job.TargetURL, item.URL)
		if err != nil {
			p.logger.Debug().Str("href", item.URL).Err(err).Msg("Skipping unresolvable navigation link")
			continue
		}

		node := &models.NavigationNode{
			Title:     item.Title,
			SourceURL: absolute,
		}
		if item.ParentURL != "" {
			if parentAbs, err := common.ResolveURL(job.TargetURL, item.ParentURL); err == nil {
				if parentID, ok := idByURL[parentAbs]; ok {
					node.ParentID = &parentID
				}
			}
		}

		stored, err := p.storage.Navigation().Upsert(ctx, node)
		if err != nil {
			if models.IsValidationError(err) {
				p.logger.Warn().Str("source_url", absolute).Err(err).Msg("Skipping invalid navigation node")
				continue
			}
			return processed, fmt.Errorf("navigation upsert failed: %w", err)
		}
		idByURL[absolute] = stored.ID
		processed++

		if item.IsLeaf {
			p.emitChild(ctx, models.JobTypeCategory, absolute, models.JSONMap{
				"navigation_url": absolute,
			})
		}
	}

	return processed, nil
}

// processCategory upserts the category and walks its listing pages,
// emitting a product job per discovered listing. Pagination stops at the
// next-page signal, the configured page cap, the host rate budget, or
// pool shutdown, whichever comes first.
func (p *Pool) processCategory(ctx context.Context, job *models.Job, html string) (int, error) {
	page, err := extract.ParseCategory(html)
	if err != nil {
		return 0, fmt.Errorf("category extraction failed: %w", err)
	}

	category := &models.Category{
		Title:     page.Title,
		SourceURL: job.TargetURL,
	}
	if category.Title == "" {
		category.Title = job.TargetURL
	}

	// A category reachable from several navigation nodes keeps a single
	// link; the node matching this URL wins.
	if node, err := p.storage.Navigation().GetBySourceURL(ctx, job.TargetURL); err == nil {
		category.NavigationID = &node.ID
	} else if navURL, ok := job.Metadata["navigation_url"].(string); ok {
		if node, err := p.storage.Navigation().GetBySourceURL(ctx, navURL); err == nil {
			category.NavigationID = &node.ID
		}
	}

	stored, err := p.storage.Categories().Upsert(ctx, category)
	if err != nil {
		if models.IsValidationError(err) {
			return 0, fmt.Errorf("category page yielded no valid record: %w", err)
		}
		return 0, fmt.Errorf("category upsert failed: %w", err)
	}

	host := common.HostKey(job.TargetURL)
	maxPages := p.config.Crawler.MaxListingPages
	if maxPages <= 0 {
		maxPages = 20
	}

	emitted := 0
	currentURL := job.TargetURL
	for pageNum := 1; ; pageNum++ {
		for _, productURL := range page.ProductURLs {
			absolute, err := common.ResolveURL(currentURL, productURL)
			if err != nil {
				continue
			}
			p.emitChild(ctx, models.JobTypeProduct, absolute, models.JSONMap{
				"category_url": stored.SourceURL,
			})
			emitted++
		}

		if page.NextPageURL == "" || pageNum >= maxPages {
			break
		}

		// Natural boundary: stop paginating on shutdown or an exhausted
		// host budget; what's emitted so far stands.
		select {
		case <-p.ctx.Done():
			return emitted + 1, nil
		default:
		}
		if !p.limiter.Allowed(host) {
			p.logger.Debug().Str("host", host).Int("page", pageNum).Msg("Host budget reached, stopping pagination")
			break
		}

		nextURL, err := common.ResolveURL(currentURL, page.NextPageURL)
		if err != nil {
			break
		}
		p.limiter.Record(host)
		nextHTML, err := p.renderer.Render(ctx, nextURL)
		if err != nil {
			return emitted + 1, fmt.Errorf("render of listing page %d failed: %w", pageNum+1, err)
		}
		page, err = extract.ParseCategory(nextHTML)
		if err != nil {
			return emitted + 1, fmt.Errorf("extraction of listing page %d failed: %w", pageNum+1, err)
		}
		currentURL = nextURL
	}

	// The category row plus every emitted product job.
	return emitted + 1, nil
}

// processProduct parses the detail page, stores the image subset that
// succeeds, and upserts the product.
func (p *Pool) processProduct(ctx context.Context, job *models.Job, html string) (int, error) {
	detail, err := extract.ParseProduct(html)
	if err != nil {
		return 0, fmt.Errorf("product extraction failed: %w", err)
	}

	results, stats := p.images.ProcessBatch(ctx, job.TargetURL, detail.ImageURLs)
	canonical := make(models.StringList, 0, stats.Stored)
	for _, r := range results {
		if r.Err == nil {
			canonical = append(canonical, r.CanonicalURL)
		}
	}

	product := &models.Product{
		Title:     detail.Title,
		SourceURL: job.TargetURL,
		Price:     detail.Price,
		Currency:  detail.Currency,
		ImageURLs: canonical,
		Specs:     detail.Specs,
		Available: detail.Available,
	}
	if detail.SourceID != "" {
		product.SourceID = &detail.SourceID
	}
	if detail.Summary != "" {
		product.Summary = &detail.Summary
	}

	// Leave category unset unless it resolves unambiguously from the
	// emitting listing.
	if categoryURL, ok := job.Metadata["category_url"].(string); ok && categoryURL != "" {
		if category, err := p.storage.Categories().GetBySourceURL(ctx, categoryURL); err == nil {
			product.CategoryID = &category.ID
		}
	}

	if _, err := p.storage.Products().Upsert(ctx, product); err != nil {
		if models.IsValidationError(err) {
			// Fatal per-record error: the record is skipped and logged,
			// the job itself completes with zero items processed; skipped
			// records are not counted in the job result.
			p.logger.Warn().Str("target_url", job.TargetURL).Err(err).Msg("Skipping invalid product record")
			return 0, nil
		}
		return 0, fmt.Errorf("product upsert failed: %w", err)
	}
	return 1, nil
}

// emitChild enqueues a discovered child job. Enqueue failures are logged,
// not fatal: the parent rerun re-discovers the child.
func (p *Pool) emitChild(ctx context.Context, jobType models.JobType, targetURL string, metadata models.JSONMap) {
	_, err := p.queue.Enqueue(ctx, models.JobRequest{
		Type:      string(jobType),
		TargetURL: targetURL,
		Priority:  childJobPriority,
		Metadata:  metadata,
	})
	if err != nil {
		p.logger.Warn().
			Str("type", string(jobType)).
			Str("target_url", targetURL).
			Err(err).
			Msg("Failed to emit child job")
	}
}

func (p *Pool) failJob(job *models.Job, jobErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.logger.Warn().
		Str("job_id", job.ID).
		Str("target_url", job.TargetURL).
		Err(jobErr).
		Msg("Job attempt failed")
	if err := p.queue.Fail(ctx, job.ID, jobErr); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
	}
}

// sleep waits for d or until shutdown, whichever is first.
func (p *Pool) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.ctx.Done():
	case <-timer.C:
	}
}
