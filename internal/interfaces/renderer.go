package interfaces

import "context"

// Renderer fetches a fully rendered DOM for a target URL. The production
// implementation drives a headless browser; tests substitute static HTML.
type Renderer interface {
	// Render navigates to targetURL and returns the serialized HTML after
	// scripts have settled. Navigation and timeout failures are errors.
	Render(ctx context.Context, targetURL string) (string, error)

	Close() error
}
