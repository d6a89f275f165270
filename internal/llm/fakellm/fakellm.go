// Package fakellm provides a scripted chat model for tests and offline runs.
package fakellm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel replays scripted responses in order; the last one repeats once
// the script is exhausted. Every call gets a fresh message value.
type ChatModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	next      int
	err       error
	inputs    [][]*schema.Message
	tools     []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

func New(responses ...*schema.Message) *ChatModel {
	return &ChatModel{responses: responses}
}

// Text scripts plain assistant replies.
func Text(contents ...string) *ChatModel {
	msgs := make([]*schema.Message, 0, len(contents))
	for _, c := range contents {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return New(msgs...)
}

// Failing returns a model whose every call fails with err.
func Failing(err error) *ChatModel {
	return &ChatModel{err: err}
}

// ToolCall builds an assistant message requesting a single tool call.
func ToolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	idx := m.next
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.next++
	}
	cp := *m.responses[idx]
	return &cp, nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

// Calls reports how many times the model was invoked.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Input returns the messages of the i-th call.
func (m *ChatModel) Input(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.inputs) {
		return nil
	}
	return m.inputs[i]
}

// BoundTools returns the names of the tools last bound with WithTools.
func (m *ChatModel) BoundTools() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tools))
	for _, t := range m.tools {
		names = append(names, t.Name)
	}
	return names
}
