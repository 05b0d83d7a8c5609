package pacing

import "context"

// ItemResult captures one item's outcome within a paced sequence.
type ItemResult[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// ForEach runs op over items strictly in source order, pausing ItemDelay
// between consecutive items and retrying each operation per cfg. An item's
// unrecoverable failure is captured in its ItemResult and the sequence
// continues; only context cancellation stops the loop early, returning the
// results collected so far.
//
// Order matters: later items may depend on identifiers produced by earlier
// ones (reply chaining, create-then-publish), so items are never reordered
// or run concurrently.
func ForEach[T, R any](ctx context.Context, cfg Config, items []T, op func(ctx context.Context, item T) (R, error)) []ItemResult[T, R] {
	cfg = cfg.withDefaults()
	results := make([]ItemResult[T, R], 0, len(items))

	for i, item := range items {
		if i > 0 && cfg.ItemDelay > 0 {
			if err := sleep(ctx, cfg.ItemDelay); err != nil {
				return results
			}
		}
		if ctx.Err() != nil {
			return results
		}

		val, err := DoVal(ctx, cfg, func(ctx context.Context) (R, error) {
			return op(ctx, item)
		})
		results = append(results, ItemResult[T, R]{Item: item, Value: val, Err: err})
	}

	return results
}
