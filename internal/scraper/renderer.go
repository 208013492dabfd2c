package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
)

// ChromeRenderer drives a shared headless browser to fetch rendered DOMs.
// A circuit breaker trips after repeated render failures so a wedged
// browser fails fast instead of burning every job's attempts on timeouts.
type ChromeRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	breaker         *gobreaker.CircuitBreaker
	logger          arbor.ILogger
	renderTimeout   time.Duration
	waitTime        time.Duration
}

// NewChromeRenderer starts the browser process and verifies it responds.
func NewChromeRenderer(cfg *common.Config, logger arbor.ILogger) (*ChromeRenderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(cfg.Crawler.UserAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", true),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)

	// Startup test before any job depends on the browser.
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "renderer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Renderer circuit breaker state changed")
		},
	})

	logger.Info().Msg("Headless renderer initialized")
	return &ChromeRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		breaker:         breaker,
		logger:          logger,
		renderTimeout:   cfg.Crawler.RenderTimeout,
		waitTime:        cfg.Crawler.RenderWaitTime,
	}, nil
}

// Render navigates to targetURL in a fresh tab and returns the serialized
// HTML after scripts have settled.
func (r *ChromeRenderer) Render(ctx context.Context, targetURL string) (string, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		// Fresh tab per render so page state never leaks between jobs.
		tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
		defer tabCancel()

		timeout := r.renderTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if until := time.Until(deadline); until < timeout {
				timeout = until
			}
		}
		runCtx, cancel := context.WithTimeout(tabCtx, timeout)
		defer cancel()

		var html string
		err := chromedp.Run(runCtx,
			chromedp.Navigate(targetURL),
			chromedp.Sleep(r.waitTime),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", targetURL, err)
		}
		return html, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Close tears down the browser process.
func (r *ChromeRenderer) Close() error {
	r.browserCancel()
	r.allocatorCancel()
	r.logger.Debug().Msg("Headless renderer closed")
	return nil
}
