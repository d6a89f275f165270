package fakellm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptRepeatsLast(t *testing.T) {
	m := Text("first", "second")
	ctx := context.Background()

	var got []string
	for i := 0; i < 3; i++ {
		msg, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
		require.NoError(t, err)
		got = append(got, msg.Content)
	}
	assert.Equal(t, []string{"first", "second", "second"}, got)
	assert.Equal(t, 3, m.Calls())
}

func TestFreshMessagePerCall(t *testing.T) {
	m := Text("same")
	a, _ := m.Generate(context.Background(), nil)
	b, _ := m.Generate(context.Background(), nil)
	assert.NotSame(t, a, b)
}

func TestFailing(t *testing.T) {
	m := Failing(errors.New("timeout"))
	_, err := m.Generate(context.Background(), nil)
	assert.EqualError(t, err, "timeout")
}

func TestStreamAndTools(t *testing.T) {
	m := New(ToolCall("c1", "get_yfinance_data", `{"symbol":"NVDA"}`))
	bound, err := m.WithTools([]*schema.ToolInfo{{Name: "get_yfinance_data"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"get_yfinance_data"}, m.BoundTools())

	sr, err := bound.Stream(context.Background(), nil)
	require.NoError(t, err)
	defer sr.Close()
	msg, err := sr.Recv()
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "c1", msg.ToolCalls[0].ID)
}
