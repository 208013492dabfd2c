// Package revalidation bridges stale cache fingerprints back into scrape
// jobs on the worker host's signed intake.
package revalidation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
	"github.com/vaibhavdavedev/datashelf/internal/models"
	"github.com/vaibhavdavedev/datashelf/internal/signing"
)

// StaleCacheKey is the rate-limiter source key shared by all stale-cache
// triggered revalidations.
const StaleCacheKey = "stale-cache"

// revalidationPriority sits above organic crawl jobs but below admin work.
const revalidationPriority = 3

// Service maps cache keys to jobs and posts them, rate-limited and signed.
type Service struct {
	enabled    bool
	siteRoot   string
	workerHost string
	limiter    interfaces.RateLimiter
	signer     *signing.Signer
	client     *http.Client
	logger     arbor.ILogger
}

// NewService creates the revalidation bridge.
func NewService(enabled bool, siteRoot, workerHost string, limiter interfaces.RateLimiter, signer *signing.Signer, logger arbor.ILogger) *Service {
	return &Service{
		enabled:    enabled,
		siteRoot:   strings.TrimRight(siteRoot, "/"),
		workerHost: strings.TrimRight(workerHost, "/"),
		limiter:    limiter,
		signer:     signer,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Trigger translates a stale cache key into a scrape job and posts it.
// Disabled configuration, rate denial, and unmappable keys are quiet
// drops; the serving cache never sees an error from this path.
func (s *Service) Trigger(ctx context.Context, cacheKey string) {
	if !s.enabled {
		return
	}

	req := s.MapCacheKey(cacheKey)
	if req == nil {
		s.logger.Debug().Str("cache_key", cacheKey).Msg("Unmappable cache key, dropping revalidation")
		return
	}

	if !s.limiter.Allowed(StaleCacheKey) {
		minute, hour := s.limiter.Usage(StaleCacheKey)
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Int("minute_usage", minute).
			Int("hour_usage", hour).
			Msg("Revalidation rate limited, dropping")
		return
	}
	s.limiter.Record(StaleCacheKey)

	if err := s.post(ctx, req); err != nil {
		s.logger.Warn().
			Str("cache_key", cacheKey).
			Err(err).
			Msg("Revalidation post failed")
		return
	}

	s.logger.Info().
		Str("cache_key", cacheKey).
		Str("type", req.Type).
		Str("target_url", req.TargetURL).
		Msg("Revalidation job posted")
}

// MapCacheKey resolves a fingerprint to the job that refreshes it.
// Returns nil for keys with no job mapping.
func (s *Service) MapCacheKey(cacheKey string) *models.JobRequest {
	prefix, params := splitKey(cacheKey)

	var jobType models.JobType
	var targetURL string

	switch prefix {
	case "navigation":
		jobType = models.JobTypeNavigation
		targetURL = s.siteRoot

	case "categories":
		navID := params["navId"]
		if navID == "" {
			return nil
		}
		jobType = models.JobTypeCategory
		targetURL = fmt.Sprintf("%s/category/%s", s.siteRoot, navID)

	case "products":
		categoryID := params["categoryId"]
		if categoryID == "" {
			return nil
		}
		jobType = models.JobTypeProduct
		targetURL = fmt.Sprintf("%s/category/%s/products", s.siteRoot, categoryID)

	case "product_detail":
		id := params["id"]
		if id == "" {
			return nil
		}
		jobType = models.JobTypeProduct
		targetURL = fmt.Sprintf("%s/product/%s", s.siteRoot, id)

	default:
		return nil
	}

	if targetURL == "" {
		return nil
	}

	return &models.JobRequest{
		Type:      string(jobType),
		TargetURL: targetURL,
		Priority:  revalidationPriority,
		Metadata: models.JSONMap{
			"cache_key":         cacheKey,
			"revalidation_type": "stale",
		},
	}
}

// post signs and sends the job to the worker intake.
func (s *Service) post(ctx context.Context, jobReq *models.JobRequest) error {
	body, err := json.Marshal(jobReq)
	if err != nil {
		return fmt.Errorf("failed to marshal job request: %w", err)
	}

	intakeURL := s.workerHost + "/jobs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, intakeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build intake request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := s.signer.Sign(req, body); err != nil {
		return fmt.Errorf("failed to sign intake request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("intake request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("intake returned status %d", resp.StatusCode)
	}
	return nil
}

// splitKey separates a fingerprint into prefix and decoded parameters.
func splitKey(cacheKey string) (string, map[string]string) {
	prefix, query, found := strings.Cut(cacheKey, "?")
	params := map[string]string{}
	if found {
		if values, err := url.ParseQuery(query); err == nil {
			for name := range values {
				params[name] = values.Get(name)
			}
		}
	}
	return prefix, params
}
