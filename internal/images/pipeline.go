// Package images fetches, validates, and stores product images. A failed
// image never fails the owning product; the product keeps the successful
// subset.
package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
)

// allowedFormats maps sniffed content types to canonical extensions.
var allowedFormats = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// skippedExtensions are rejected before any fetch happens.
var skippedExtensions = map[string]bool{
	".svg": true, ".ico": true, ".bmp": true, ".tiff": true,
	".css": true, ".js": true, ".html": true,
}

// Result reports the outcome of one image.
type Result struct {
	SourceURL    string
	CanonicalURL string
	Err          error
}

// BatchStats aggregates a batch for logging.
type BatchStats struct {
	Requested int
	Stored    int
	Skipped   int
	Failed    int
}

// Pipeline resolves, fetches, validates, and stores images.
type Pipeline struct {
	store       interfaces.BlobStore
	client      *http.Client
	logger      arbor.ILogger
	maxBytes    int64
	concurrency int
}

// NewPipeline creates an image pipeline over a blob store.
func NewPipeline(store interfaces.BlobStore, cfg *common.Config, logger arbor.ILogger) *Pipeline {
	concurrency := cfg.Images.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		store:       store,
		client:      &http.Client{Timeout: cfg.ImageFetchTimeout()},
		logger:      logger,
		maxBytes:    cfg.Images.MaxBytes,
		concurrency: concurrency,
	}
}

// Process handles a single image URL, possibly relative to baseURL, and
// returns the canonical public URL on success.
func (p *Pipeline) Process(ctx context.Context, baseURL, imageURL string) (string, error) {
	absolute, err := common.ResolveURL(baseURL, imageURL)
	if err != nil {
		return "", fmt.Errorf("unresolvable image URL: %w", err)
	}

	if skip, reason := p.shouldSkip(absolute); skip {
		return "", fmt.Errorf("skipped image %s: %s", absolute, reason)
	}

	data, err := p.fetch(ctx, absolute)
	if err != nil {
		return "", err
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedFormats[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported image format %s for %s", contentType, absolute)
	}

	// Preserve the original extension where it agrees with the sniffed
	// format; clients key display logic off it.
	if orig := strings.TrimPrefix(strings.ToLower(path.Ext(strippedPath(absolute))), "."); orig == "jpeg" && ext == "jpg" {
		ext = "jpeg"
	}

	hash := sha256.Sum256(data)
	key := fmt.Sprintf("products/%s.%s", hex.EncodeToString(hash[:]), ext)

	canonical, err := p.store.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store image %s: %w", absolute, err)
	}
	return canonical, nil
}

// ProcessBatch runs a set of image URLs with bounded concurrency and
// returns per-item results in input order plus aggregate stats.
func (p *Pipeline) ProcessBatch(ctx context.Context, baseURL string, imageURLs []string) ([]Result, BatchStats) {
	results := make([]Result, len(imageURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, imageURL := range imageURLs {
		g.Go(func() error {
			canonical, err := p.Process(gctx, baseURL, imageURL)
			results[i] = Result{SourceURL: imageURL, CanonicalURL: canonical, Err: err}
			// Image failures are isolated; never cancel siblings.
			return nil
		})
	}
	g.Wait()

	stats := BatchStats{Requested: len(imageURLs)}
	for _, r := range results {
		switch {
		case r.Err == nil:
			stats.Stored++
		case strings.Contains(r.Err.Error(), "skipped image"):
			stats.Skipped++
		default:
			stats.Failed++
			p.logger.Warn().
				Str("image_url", r.SourceURL).
				Err(r.Err).
				Msg("Image processing failed")
		}
	}

	p.logger.Debug().
		Int("requested", stats.Requested).
		Int("stored", stats.Stored).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("Image batch processed")
	return results, stats
}

// shouldSkip applies the cheap extension/host heuristics before fetching.
func (p *Pipeline) shouldSkip(absolute string) (bool, string) {
	if common.HostKey(absolute) == "" {
		return true, "no host"
	}
	ext := strings.ToLower(path.Ext(strippedPath(absolute)))
	if skippedExtensions[ext] {
		return true, "extension " + ext
	}
	return false, ""
}

// fetch downloads the image with the configured timeout and size cap.
func (p *Pipeline) fetch(ctx context.Context, absolute string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absolute, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %s: %w", absolute, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch %s returned status %d", absolute, resp.StatusCode)
	}

	// Read one byte past the cap to distinguish at-limit from over-limit.
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", absolute, err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("image %s exceeds the %d byte cap", absolute, p.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", absolute)
	}
	return data, nil
}

// strippedPath returns the URL path without query or fragment.
func strippedPath(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
