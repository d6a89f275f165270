package agents

import (
	"context"
	"fmt"

	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/models"
)

// Researcher argues one side of the investment debate.
type Researcher struct {
	roster *Roster
	node   string
	agent  string
	side   models.Speaker
	prompt string
	memory Memory
}

func NewBullResearcher(r *Roster) *Researcher {
	return &Researcher{
		roster: r,
		node:   consts.BullResearcher,
		agent:  consts.Agent_BullAnalyst,
		side:   models.SpeakerBull,
		prompt: "bull_researcher",
		memory: r.memory(consts.Memory_Bull),
	}
}

func NewBearResearcher(r *Roster) *Researcher {
	return &Researcher{
		roster: r,
		node:   consts.BearResearcher,
		agent:  consts.Agent_BearAnalyst,
		side:   models.SpeakerBear,
		prompt: "bear_researcher",
		memory: r.memory(consts.Memory_Bear),
	}
}

func (a *Researcher) Run(ctx context.Context, state *models.TradingState) (*models.StateDelta, error) {
	situation := state.SituationSummary()
	memories, err := pastMemories(ctx, a.memory, situation, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.node, err)
	}
	role, err := LoadPrompt(a.prompt)
	if err != nil {
		return nil, err
	}

	debate := state.InvestDebate()
	input, err := userPrompt(ctx, "researcher", map[string]any{
		"role_prompt":      role,
		"situation":        situation,
		"history":          debate.History,
		"current_response": debate.CurrentResponse,
		"past_memories":    memories,
	})
	if err != nil {
		return nil, err
	}

	msg, err := a.roster.chat(ctx, a.node, a.roster.quick(a.node), input)
	if err != nil {
		return nil, err
	}

	argument := a.agent + ": " + msg.Content
	debate.History += "\n" + argument
	if a.side == models.SpeakerBull {
		debate.BullHistory += "\n" + argument
	} else {
		debate.BearHistory += "\n" + argument
	}
	debate.CurrentResponse = argument
	debate.LatestSpeaker = a.side
	debate.Count++

	return &models.StateDelta{InvestmentDebateState: debate}, nil
}
