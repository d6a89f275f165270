package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/internal/memory"
	"github.com/dyike/agenttrader/internal/tools"
)

const noPastMemories = "No past memories found."

// Memory is the retrieval side of a role memory.
type Memory interface {
	Get(ctx context.Context, situation string, n int) ([]memory.Match, error)
}

// Roster wires agents to their collaborators. Overrides replace the tier
// model for a single node id.
type Roster struct {
	Quick     model.ToolCallingChatModel
	Deep      model.BaseChatModel
	Overrides map[string]model.ToolCallingChatModel
	Tools     *tools.Gateway
	Memories  *memory.Bank
	Callbacks []callbacks.Handler
}

func (r *Roster) quick(node string) model.ToolCallingChatModel {
	if m, ok := r.Overrides[node]; ok {
		return m
	}
	return r.Quick
}

func (r *Roster) deep(node string) model.BaseChatModel {
	if m, ok := r.Overrides[node]; ok {
		return m
	}
	return r.Deep
}

func (r *Roster) memory(role string) Memory {
	m := r.Memories.Memory(role)
	if m == nil {
		return nil
	}
	return m
}

// chat runs one model call for node, with the roster's callback handlers
// attached to the context.
func (r *Roster) chat(ctx context.Context, node string, m model.BaseChatModel, input []*schema.Message) (*schema.Message, error) {
	if m == nil {
		return nil, fmt.Errorf("%s: no chat model configured", node)
	}
	if len(r.Callbacks) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      node,
			Type:      "ChatModel",
			Component: components.ComponentOfChatModel,
		}, r.Callbacks...)
	}
	msg, err := m.Generate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%s: model returned no message", node)
	}
	return msg, nil
}

// pastMemories renders up to n recommendations similar to situation.
func pastMemories(ctx context.Context, mem Memory, situation string, n int) (string, error) {
	if mem == nil {
		return noPastMemories, nil
	}
	matches, err := mem.Get(ctx, situation, n)
	if err != nil {
		return "", fmt.Errorf("memory lookup: %w", err)
	}
	if len(matches) == 0 {
		return noPastMemories, nil
	}
	recs := make([]string, 0, len(matches))
	for _, m := range matches {
		recs = append(recs, m.Recommendation)
	}
	return strings.Join(recs, "\n"), nil
}
