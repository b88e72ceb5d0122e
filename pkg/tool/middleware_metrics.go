package tool

import (
	"time"

	"github.com/tallyhq/tally/pkg/telemetry"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// Metrics records per-tool execution counters and durations.
func Metrics() Middleware {
	return func(next Executor) Executor {
		return func(ec *ExecutionContext) (*builtin.Result, error) {
			start := time.Now()
			result, err := next(ec)

			status := "ok"
			if err != nil {
				status = "error"
			} else if result != nil && !result.Success {
				status = "failed"
			}
			telemetry.RecordToolExecution(ec.ToolName, status, time.Since(start))
			return result, err
		}
	}
}
