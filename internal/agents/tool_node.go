package agents

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/internal/tools"
	"github.com/dyike/agenttrader/models"
)

// ToolNode executes the tool calls of the last message through the gateway.
type ToolNode struct {
	gateway *tools.Gateway
}

func NewToolNode(gw *tools.Gateway) *ToolNode {
	return &ToolNode{gateway: gw}
}

func (n *ToolNode) Run(ctx context.Context, state *models.TradingState) (*models.StateDelta, error) {
	last := state.LastMessage()
	if last == nil || len(last.ToolCalls) == 0 {
		return &models.StateDelta{}, nil
	}
	return &models.StateDelta{Messages: n.gateway.ExecuteAll(ctx, last)}, nil
}

// ClearMessages drops the analyst conversation and leaves a single
// placeholder turn so the next analyst starts clean.
func ClearMessages(_ context.Context, _ *models.TradingState) (*models.StateDelta, error) {
	return &models.StateDelta{
		Messages:      []*schema.Message{schema.UserMessage(consts.Continue)},
		ResetMessages: true,
	}, nil
}
