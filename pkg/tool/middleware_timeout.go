package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// Timeout bounds each tool execution. A zero duration disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*builtin.Result, error) {
			if ctx == nil || d <= 0 {
				return next(ctx)
			}

			parent := ctx.Context
			if parent == nil {
				parent = context.Background()
			}
			bounded, cancel := context.WithTimeout(parent, d)
			defer cancel()
			ctx.Context = bounded

			res, err := next(ctx)
			if bounded.Err() == context.DeadlineExceeded {
				timeoutErr := errors.New(errors.ErrCodeToolTimeout,
					fmt.Sprintf("tool %s exceeded %s", ctx.ToolName, d))
				return builtin.Fail(timeoutErr.Error()), timeoutErr
			}
			return res, err
		}
	}
}
