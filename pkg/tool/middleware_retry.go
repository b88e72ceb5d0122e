package tool

import (
	"time"

	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// RetryConfig bounds the retry middleware.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Retry re-runs read-only tools on retryable failures. Mutating tools are
// never retried: a duplicate create is worse than a surfaced error.
func Retry(cfg RetryConfig) Middleware {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}

	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*builtin.Result, error) {
			if ctx == nil || ctx.Tool == nil || ctx.Tool.RiskTag() != risk.TagReadOnly {
				return next(ctx)
			}

			var (
				res *builtin.Result
				err error
			)
			for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
				ctx.Attempt = attempt
				res, err = next(ctx)
				if err == nil || !errors.IsRetryable(err) {
					return res, err
				}
				if attempt < cfg.MaxAttempts {
					select {
					case <-time.After(cfg.Backoff * time.Duration(attempt)):
					case <-done(ctx):
						return res, err
					}
				}
			}
			return res, err
		}
	}
}

func done(ctx *ExecutionContext) <-chan struct{} {
	if ctx.Context == nil {
		return nil
	}
	return ctx.Context.Done()
}
