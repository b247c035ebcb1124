package coordinator

import (
	"context"

	"github.com/vietddude/bulwark/internal/core/domain"
)

// Run executes a typed operation through c and unwraps the result, so
// callers with a concrete payload type avoid the any assertion. The
// zero value is returned alongside a failed outcome.
func Run[T any](ctx context.Context, c *Coordinator, exec domain.ExecContext, op func(ctx context.Context) (T, error)) (T, domain.Outcome) {
	outcome := c.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, exec, nil)

	var value T
	if outcome.Success {
		value, _ = outcome.Result.(T)
	}
	return value, outcome
}
