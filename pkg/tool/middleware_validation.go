package tool

import (
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// Validation checks parameters against the tool's declared schema before
// execution. Invalid arguments never reach the tool body.
func Validation() Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*builtin.Result, error) {
			if ctx == nil || ctx.Tool == nil {
				return next(ctx)
			}
			if err := ValidateParams(ctx.Tool.Parameters(), ctx.Params); err != nil {
				if ctx.Metadata == nil {
					ctx.Metadata = map[string]any{}
				}
				ctx.Metadata["validation_error"] = err.Error()
				return builtin.Fail(err.Error()), err
			}
			return next(ctx)
		}
	}
}
