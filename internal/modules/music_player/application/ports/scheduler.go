package ports

import "context"

// Scheduler runs functions on the single context that owns guild state.
type Scheduler interface {
	// Run executes fn on the scheduling context and waits for it to return.
	// Calls made from within the scheduling context run inline.
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}
