package agents

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(name string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// userPrompt renders the named template as a single user turn.
func userPrompt(ctx context.Context, name string, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := LoadPrompt(name)
	if err != nil {
		return nil, err
	}
	msgs, err := prompt.FromMessages(schema.FString, schema.UserMessage(tpl)).Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", name, err)
	}
	return msgs, nil
}
