/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import "context"

// Do executes fn through the throttler and returns its typed result.
// It is a convenience wrapper around Throttler.Execute for callers that
// want to avoid the interface{} result and the type assertion.
func Do[T any](ctx context.Context, t *Throttler, serviceName string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	_, err := t.Execute(ctx, serviceName, func(opCtx context.Context) (interface{}, error) {
		v, fnErr := fn(opCtx)
		if fnErr != nil {
			return nil, fnErr
		}
		out = v
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
