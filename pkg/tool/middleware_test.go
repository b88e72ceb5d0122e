package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(label string) Middleware {
		return func(next Executor) Executor {
			return func(ec *ExecutionContext) (*builtin.Result, error) {
				order = append(order, label+":before")
				res, err := next(ec)
				order = append(order, label+":after")
				return res, err
			}
		}
	}

	base := func(ec *ExecutionContext) (*builtin.Result, error) {
		order = append(order, "base")
		return builtin.Ok(nil), nil
	}

	exec := Chain(mk("a"), mk("b"))(base)
	_, err := exec(&ExecutionContext{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:before", "b:before", "base", "b:after", "a:after"}, order)
}

func TestValidationMiddleware(t *testing.T) {
	tl := &fakeTool{
		name: "strict",
		tag:  risk.TagAdditive,
		schema: builtin.ParameterSchema{
			Type:       "object",
			Properties: map[string]builtin.Property{"amount": {Type: "number"}},
			Required:   []string{"amount"},
		},
	}

	reached := false
	base := func(ec *ExecutionContext) (*builtin.Result, error) {
		reached = true
		return builtin.Ok(nil), nil
	}
	exec := Validation()(base)

	res, err := exec(&ExecutionContext{
		Context: context.Background(),
		Tool:    tl,
		Params:  map[string]any{},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeToolArgInvalid, errors.CodeOf(err))
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.False(t, reached, "invalid params should not reach the tool")

	res, err = exec(&ExecutionContext{
		Context: context.Background(),
		Tool:    tl,
		Params:  map[string]any{"amount": 9.99},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, reached)
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := func(ec *ExecutionContext) (*builtin.Result, error) {
		select {
		case <-ec.Context.Done():
			return nil, ec.Context.Err()
		case <-time.After(time.Second):
			return builtin.Ok(nil), nil
		}
	}

	exec := Timeout(10 * time.Millisecond)(slow)
	res, err := exec(&ExecutionContext{
		Context:  context.Background(),
		ToolName: "slow",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeToolTimeout, errors.CodeOf(err))
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestTimeoutMiddlewareDisabled(t *testing.T) {
	exec := Timeout(0)(func(ec *ExecutionContext) (*builtin.Result, error) {
		return builtin.Ok(nil), nil
	})
	res, err := exec(&ExecutionContext{Context: context.Background()})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRetryMiddlewareReadOnly(t *testing.T) {
	attempts := 0
	base := func(ec *ExecutionContext) (*builtin.Result, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New(errors.ErrCodeLedgerRequest, "backend hiccup").WithRetryable(true)
		}
		return builtin.Ok(nil), nil
	}

	exec := Retry(RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond})(base)
	res, err := exec(&ExecutionContext{
		Context: context.Background(),
		Tool:    &fakeTool{name: "query", tag: risk.TagReadOnly},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, attempts)
}

func TestRetryMiddlewareExhausted(t *testing.T) {
	attempts := 0
	base := func(ec *ExecutionContext) (*builtin.Result, error) {
		attempts++
		return nil, errors.New(errors.ErrCodeLedgerRequest, "still down").WithRetryable(true)
	}

	exec := Retry(RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond})(base)
	_, err := exec(&ExecutionContext{
		Context: context.Background(),
		Tool:    &fakeTool{name: "query", tag: risk.TagReadOnly},
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryMiddlewareSkipsMutating(t *testing.T) {
	attempts := 0
	base := func(ec *ExecutionContext) (*builtin.Result, error) {
		attempts++
		return nil, errors.New(errors.ErrCodeLedgerRequest, "backend hiccup").WithRetryable(true)
	}

	exec := Retry(RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond})(base)
	_, err := exec(&ExecutionContext{
		Context: context.Background(),
		Tool:    &fakeTool{name: "create", tag: risk.TagAdditive},
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "mutating tools are never retried")
}

func TestRetryMiddlewareSkipsNonRetryable(t *testing.T) {
	attempts := 0
	base := func(ec *ExecutionContext) (*builtin.Result, error) {
		attempts++
		return nil, errors.New(errors.ErrCodeLedgerNotFound, "no such record")
	}

	exec := Retry(RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond})(base)
	_, err := exec(&ExecutionContext{
		Context: context.Background(),
		Tool:    &fakeTool{name: "query", tag: risk.TagReadOnly},
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestMetricsMiddlewarePassthrough(t *testing.T) {
	exec := Metrics()(func(ec *ExecutionContext) (*builtin.Result, error) {
		return builtin.Ok(map[string]any{"n": 1}), nil
	})
	res, err := exec(&ExecutionContext{Context: context.Background(), ToolName: "echo"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
