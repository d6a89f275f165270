package agents

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/kataras/golog"
)

// Usage accumulates token counts reported by chat model callbacks. The
// handler's Usage covers every run of its engine; a Usage attached with
// WithRunUsage covers a single run.
type Usage struct {
	mu               sync.Mutex
	calls            int
	promptTokens     int
	completionTokens int
}

func (u *Usage) add(t *model.TokenUsage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if t != nil {
		u.promptTokens += t.PromptTokens
		u.completionTokens += t.CompletionTokens
	}
}

// Totals returns the number of completed calls and the token counts.
func (u *Usage) Totals() (calls, prompt, completion int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls, u.promptTokens, u.completionTokens
}

type runUsageKey struct{}

// WithRunUsage makes model calls under ctx also count towards u.
func WithRunUsage(ctx context.Context, u *Usage) context.Context {
	return context.WithValue(ctx, runUsageKey{}, u)
}

// RunUsage returns the Usage attached by WithRunUsage, or nil.
func RunUsage(ctx context.Context) *Usage {
	u, _ := ctx.Value(runUsageKey{}).(*Usage)
	return u
}

// NewLogHandler logs chat model activity per node and, when usage is not nil,
// accumulates token usage into it.
func NewLogHandler(usage *Usage) callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			if in := model.ConvCallbackInput(input); in != nil {
				golog.Debugf("[%s] model call with %d messages", runName(info), len(in.Messages))
			}
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			out := model.ConvCallbackOutput(output)
			if out == nil {
				return ctx
			}
			if out.Message != nil {
				if n := len(out.Message.ToolCalls); n > 0 {
					golog.Debugf("[%s] requested %d tool calls", runName(info), n)
				} else {
					golog.Debugf("[%s] replied with %d chars", runName(info), len(out.Message.Content))
				}
			}
			if usage != nil {
				usage.add(out.TokenUsage)
			}
			if run := RunUsage(ctx); run != nil && run != usage {
				run.add(out.TokenUsage)
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			golog.Errorf("[%s] model error: %v", runName(info), err)
			return ctx
		}).
		Build()
}

func runName(info *callbacks.RunInfo) string {
	if info == nil || info.Name == "" {
		return "model"
	}
	return info.Name
}
