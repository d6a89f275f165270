package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/internal/llm/fakellm"
	"github.com/dyike/agenttrader/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedModel blocks its first call until release is closed.
type gatedModel struct {
	*fakellm.ChatModel
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.ChatModel.Generate(ctx, input, opts...)
}

func TestCloseRejectsNewCalls(t *testing.T) {
	ctx := context.Background()
	closes := 0
	a := NewAnalyzer(nil, WithCloser(func() error { closes++; return nil }))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, closes)

	_, err := a.Analyze(ctx, models.AnalyzeRequest{Ticker: "NVDA", TradeDate: "2024-05-01"})
	assert.ErrorIs(t, err, ErrClosed)

	emitted := 0
	err = a.Stream(ctx, models.AnalyzeRequest{Ticker: "NVDA", TradeDate: "2024-05-01"}, func(models.StreamEvent) { emitted++ })
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, emitted)
}

func TestCloseWaitsForInflightRun(t *testing.T) {
	ctx := context.Background()
	gate := &gatedModel{
		ChatModel: fakellm.Text("HOLD."),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	overrides := scriptedModels()
	overrides[consts.RiskJudge] = gate
	f := newFixture(t, overrides)

	runDone := make(chan error, 1)
	go func() {
		_, err := f.analyzer.Analyze(ctx, models.AnalyzeRequest{Ticker: "NVDA", TradeDate: "2024-05-01"})
		runDone <- err
	}()
	<-gate.entered

	closed := make(chan error, 1)
	go func() { closed <- f.analyzer.Close() }()

	require.Eventually(t, func() bool {
		_, err := f.analyzer.History(ctx, 1)
		return errors.Is(err, ErrClosed)
	}, time.Second, 5*time.Millisecond)

	select {
	case <-closed:
		t.Fatal("Close returned while a run was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	require.NoError(t, <-runDone)
	require.NoError(t, <-closed)
}
