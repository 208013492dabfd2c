package revalidation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/models"
	"github.com/vaibhavdavedev/datashelf/internal/ratelimit"
	"github.com/vaibhavdavedev/datashelf/internal/signing"
)

const (
	testSecret   = "bridge-secret"
	testSiteRoot = "https://shop.example.com"
)

func newTestService(enabled bool, workerHost string, limits ratelimit.Limits) *Service {
	return NewService(
		enabled,
		testSiteRoot,
		workerHost,
		ratelimit.NewSlidingWindow(limits),
		signing.New(testSecret, 0),
		common.GetLogger(),
	)
}

func TestMapCacheKey(t *testing.T) {
	service := newTestService(true, "http://worker:8081", ratelimit.Limits{PerMinute: 10, PerHour: 100})

	tests := []struct {
		name     string
		cacheKey string
		wantType string
		wantURL  string
		wantNil  bool
	}{
		{"navigation", "navigation", "navigation", testSiteRoot, false},
		{"categories", "categories?navId=nav-1", "category", testSiteRoot + "/category/nav-1", false},
		{"categories without navId", "categories", "", "", true},
		{"products", "products?categoryId=cat-9&limit=20", "product", testSiteRoot + "/category/cat-9/products", false},
		{"products without category", "products?limit=20", "", "", true},
		{"product detail", "product_detail?id=p-42", "product", testSiteRoot + "/product/p-42", false},
		{"product detail without id", "product_detail", "", "", true},
		{"unknown prefix", "search?q=laptop", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := service.MapCacheKey(tt.cacheKey)
			if tt.wantNil {
				assert.Nil(t, req)
				return
			}
			require.NotNil(t, req)
			assert.Equal(t, tt.wantType, req.Type)
			assert.Equal(t, tt.wantURL, req.TargetURL)
			assert.Equal(t, 3, req.Priority)
			assert.Equal(t, tt.cacheKey, req.Metadata["cache_key"])
			assert.Equal(t, "stale", req.Metadata["revalidation_type"])
		})
	}
}

func TestTriggerPostsSignedJob(t *testing.T) {
	verifier := signing.New(testSecret, 0)

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		// The intake verifies against the URL the bridge signed.
		signedURL := "http://" + r.Host + r.URL.RequestURI()
		require.NoError(t, verifier.Verify(r.Method, signedURL, r.Header, body))

		var req models.JobRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "product", req.Type)
		assert.Equal(t, testSiteRoot+"/product/p-42", req.TargetURL)
		assert.Equal(t, 3, req.Priority)

		received.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "jobId": "j-1"})
	}))
	defer server.Close()

	service := newTestService(true, server.URL, ratelimit.Limits{PerMinute: 10, PerHour: 100})
	service.Trigger(context.Background(), "product_detail?id=p-42")

	assert.Equal(t, int32(1), received.Load())
}

func TestTriggerDisabledIsNoOp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled bridge must not post")
	}))
	defer server.Close()

	service := newTestService(false, server.URL, ratelimit.Limits{PerMinute: 10, PerHour: 100})
	service.Trigger(context.Background(), "navigation")
}

func TestTriggerRateLimitedDrops(t *testing.T) {
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer server.Close()

	service := newTestService(true, server.URL, ratelimit.Limits{PerMinute: 1, PerHour: 1})

	service.Trigger(context.Background(), "navigation")
	service.Trigger(context.Background(), "navigation")

	// Give the second (dropped) trigger no chance to have posted.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestTriggerUnmappableKeyDrops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unmappable key must not post")
	}))
	defer server.Close()

	service := newTestService(true, server.URL, ratelimit.Limits{PerMinute: 10, PerHour: 100})
	service.Trigger(context.Background(), "search?q=laptop")
}
