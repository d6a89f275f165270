package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/kataras/golog"
)

// Gateway is the registry analysts and tool nodes call through. Execute never
// returns an error: failures become the text of the tool message so the model
// can read and react to them.
type Gateway struct {
	tools map[string]tool.InvokableTool
	infos map[string]*schema.ToolInfo
	names []string
}

func NewGateway(ctx context.Context, ts ...tool.InvokableTool) (*Gateway, error) {
	g := &Gateway{
		tools: make(map[string]tool.InvokableTool, len(ts)),
		infos: make(map[string]*schema.ToolInfo, len(ts)),
	}
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		if _, dup := g.tools[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", info.Name)
		}
		g.tools[info.Name] = t
		g.infos[info.Name] = info
		g.names = append(g.names, info.Name)
	}
	sort.Strings(g.names)
	return g, nil
}

func (g *Gateway) Names() []string {
	return append([]string(nil), g.names...)
}

// Infos returns the tool descriptions for names, in the given order.
func (g *Gateway) Infos(names ...string) ([]*schema.ToolInfo, error) {
	out := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		info, ok := g.infos[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		out = append(out, info)
	}
	return out, nil
}

// Execute runs one tool call and wraps the result as a tool message.
func (g *Gateway) Execute(ctx context.Context, call schema.ToolCall) *schema.Message {
	name := call.Function.Name
	t, ok := g.tools[name]
	if !ok {
		golog.Warnf("tool %s requested but not registered", name)
		return schema.ToolMessage(
			fmt.Sprintf("Error: tool %q is not available. Available tools: %s", name, strings.Join(g.names, ", ")),
			call.ID)
	}

	args := call.Function.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	golog.Debugf("tool %s args=%s", name, args)

	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		golog.Warnf("tool %s failed: %v", name, err)
		return schema.ToolMessage(fmt.Sprintf("Error calling %s: %v", name, err), call.ID)
	}
	return schema.ToolMessage(out, call.ID)
}

// ExecuteAll runs every tool call of msg sequentially.
func (g *Gateway) ExecuteAll(ctx context.Context, msg *schema.Message) []*schema.Message {
	if msg == nil {
		return nil
	}
	out := make([]*schema.Message, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		out = append(out, g.Execute(ctx, call))
	}
	return out
}
