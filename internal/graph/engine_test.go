package graph

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendNode(text string) NodeFunc {
	return func(_ context.Context, _ *models.TradingState) (*models.StateDelta, error) {
		return &models.StateDelta{Messages: []*schema.Message{schema.AssistantMessage(text, nil)}}, nil
	}
}

func linearDefinition() Definition {
	return Definition{
		Entry: "a",
		Nodes: map[string]NodeFunc{"a": appendNode("a"), "b": appendNode("b")},
		Edges: map[string]Edge{"a": Static("b"), "b": Static(END)},
	}
}

func TestCompileRejectsBadTopologies(t *testing.T) {
	noop := appendNode("x")
	always := func(*models.TradingState) string { return "go" }

	cases := map[string]Definition{
		"missing entry": {
			Entry: "nope",
			Nodes: map[string]NodeFunc{"a": noop},
			Edges: map[string]Edge{"a": Static(END)},
		},
		"no outgoing edge": {
			Entry: "a",
			Nodes: map[string]NodeFunc{"a": noop, "b": noop},
			Edges: map[string]Edge{"a": Static("b")},
		},
		"unknown static target": {
			Entry: "a",
			Nodes: map[string]NodeFunc{"a": noop},
			Edges: map[string]Edge{"a": Static("ghost")},
		},
		"unknown route target": {
			Entry: "a",
			Nodes: map[string]NodeFunc{"a": noop},
			Edges: map[string]Edge{"a": Conditional(always, map[string]string{"go": "ghost"})},
		},
		"edge from unknown node": {
			Entry: "a",
			Nodes: map[string]NodeFunc{"a": noop},
			Edges: map[string]Edge{"a": Static(END), "ghost": Static("a")},
		},
		"conditional without policy": {
			Entry: "a",
			Nodes: map[string]NodeFunc{"a": noop},
			Edges: map[string]Edge{"a": Conditional(nil, map[string]string{"go": END})},
		},
		"nil node function": {
			Entry: "a",
			Nodes: map[string]NodeFunc{"a": nil},
			Edges: map[string]Edge{"a": Static(END)},
		},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(def)
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}

	_, err := Compile(linearDefinition(), WithMaxSteps(0))
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestInvokeRunsToEnd(t *testing.T) {
	g, err := Compile(linearDefinition())
	require.NoError(t, err)

	input := models.NewTradingState("NVDA", "2024-05-01")
	out, err := g.Invoke(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, out.Messages, 3)
	assert.Equal(t, "a", out.Messages[1].Content)
	assert.Equal(t, "b", out.Messages[2].Content)
	assert.Len(t, input.Messages, 1, "input state must not be mutated")
}

func TestRecursionLimit(t *testing.T) {
	loop := func(*models.TradingState) string { return "again" }
	def := Definition{
		Entry: "spin",
		Nodes: map[string]NodeFunc{"spin": appendNode("tick")},
		Edges: map[string]Edge{"spin": Conditional(loop, map[string]string{"again": "spin"})},
	}
	g, err := Compile(def, WithMaxSteps(5))
	require.NoError(t, err)

	state, err := g.Invoke(context.Background(), models.NewTradingState("NVDA", "2024-05-01"))
	assert.ErrorIs(t, err, ErrRecursionLimit)
	require.NotNil(t, state)
	assert.Len(t, state.Messages, 6)
}

func TestUnknownRoute(t *testing.T) {
	bad := func(*models.TradingState) string { return "sideways" }
	def := Definition{
		Entry: "a",
		Nodes: map[string]NodeFunc{"a": appendNode("a")},
		Edges: map[string]Edge{"a": Conditional(bad, map[string]string{"up": END})},
	}
	g, err := Compile(def)
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), models.NewTradingState("NVDA", "2024-05-01"))
	assert.ErrorIs(t, err, ErrUnknownRoute)
	assert.Contains(t, err.Error(), "sideways")
}

func TestNodeErrorStopsRun(t *testing.T) {
	boom := errors.New("model down")
	def := linearDefinition()
	def.Nodes["b"] = func(context.Context, *models.TradingState) (*models.StateDelta, error) {
		return nil, boom
	}
	g, err := Compile(def)
	require.NoError(t, err)

	state, err := g.Invoke(context.Background(), models.NewTradingState("NVDA", "2024-05-01"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "node b")
	assert.Len(t, state.Messages, 2, "writes of completed nodes are kept")
}

func TestWriteOnceConflictStopsRun(t *testing.T) {
	write := func(v string) NodeFunc {
		return func(context.Context, *models.TradingState) (*models.StateDelta, error) {
			return &models.StateDelta{InvestmentPlan: models.Str(v)}, nil
		}
	}
	def := Definition{
		Entry: "a",
		Nodes: map[string]NodeFunc{"a": write("Buy"), "b": write("Sell")},
		Edges: map[string]Edge{"a": Static("b"), "b": Static(END)},
	}
	g, err := Compile(def)
	require.NoError(t, err)

	state, err := g.Invoke(context.Background(), models.NewTradingState("NVDA", "2024-05-01"))
	assert.ErrorIs(t, err, models.ErrWriteOnce)
	assert.Equal(t, "Buy", state.InvestmentPlan)
}

func TestCancelledContext(t *testing.T) {
	g, err := Compile(linearDefinition())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Invoke(ctx, models.NewTradingState("NVDA", "2024-05-01"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamMatchesInvoke(t *testing.T) {
	g, err := Compile(linearDefinition())
	require.NoError(t, err)

	var nodes []string
	var final Event
	for ev := range g.Stream(context.Background(), models.NewTradingState("NVDA", "2024-05-01")) {
		if ev.Done {
			final = ev
			continue
		}
		require.NotNil(t, ev.Step)
		assert.Equal(t, len(nodes), ev.Step.Index)
		nodes = append(nodes, ev.Step.Node)
	}

	assert.Equal(t, []string{"a", "b"}, nodes)
	require.True(t, final.Done)
	require.NoError(t, final.Err)

	want, err := g.Invoke(context.Background(), models.NewTradingState("NVDA", "2024-05-01"))
	require.NoError(t, err)
	require.Len(t, final.State.Messages, len(want.Messages))
	for i := range want.Messages {
		assert.Equal(t, want.Messages[i].Content, final.State.Messages[i].Content)
	}
}

func TestStreamReportsFailure(t *testing.T) {
	def := linearDefinition()
	def.Nodes["a"] = func(context.Context, *models.TradingState) (*models.StateDelta, error) {
		return nil, errors.New("bad")
	}
	g, err := Compile(def)
	require.NoError(t, err)

	var events []Event
	for ev := range g.Stream(context.Background(), models.NewTradingState("NVDA", "2024-05-01")) {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
	assert.Error(t, events[0].Err)
	assert.NotNil(t, events[0].State)
}

func TestAbandonedStreamExits(t *testing.T) {
	g, err := Compile(linearDefinition())
	require.NoError(t, err)

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch := g.Stream(ctx, models.NewTradingState("NVDA", "2024-05-01"))
		<-ch
		cancel()
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond, "stream goroutines still running")
}

func TestCancelledStreamStillCloses(t *testing.T) {
	release := make(chan struct{})
	def := linearDefinition()
	def.Nodes["a"] = func(ctx context.Context, _ *models.TradingState) (*models.StateDelta, error) {
		close(release)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	g, err := Compile(def)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := g.Stream(ctx, models.NewTradingState("NVDA", "2024-05-01"))
	<-release
	cancel()

	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
	assert.ErrorIs(t, events[0].Err, context.Canceled)
}

func TestDrawMermaid(t *testing.T) {
	g, err := Compile(linearDefinition())
	require.NoError(t, err)
	out := g.DrawMermaid()
	assert.Contains(t, out, "START --> a")
	assert.Contains(t, out, "b --> END")
}
