package agents

import (
	"context"

	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/models"
)

// RiskDebator is one of the three risk committee voices.
type RiskDebator struct {
	roster  *Roster
	node    string
	agent   string
	speaker models.Speaker
	prompt  string
}

func NewRiskyAnalyst(r *Roster) *RiskDebator {
	return &RiskDebator{roster: r, node: consts.RiskyAnalyst, agent: consts.Agent_RiskyAnalyst,
		speaker: models.SpeakerRisky, prompt: "risky_analyst"}
}

func NewSafeAnalyst(r *Roster) *RiskDebator {
	return &RiskDebator{roster: r, node: consts.SafeAnalyst, agent: consts.Agent_SafeAnalyst,
		speaker: models.SpeakerSafe, prompt: "safe_analyst"}
}

func NewNeutralAnalyst(r *Roster) *RiskDebator {
	return &RiskDebator{roster: r, node: consts.NeutralAnalyst, agent: consts.Agent_NeutralAnalyst,
		speaker: models.SpeakerNeutral, prompt: "neutral_analyst"}
}

func (a *RiskDebator) Run(ctx context.Context, state *models.TradingState) (*models.StateDelta, error) {
	role, err := LoadPrompt(a.prompt)
	if err != nil {
		return nil, err
	}
	risk := state.RiskDebate()
	input, err := userPrompt(ctx, "risk_debator", map[string]any{
		"role_prompt":      role,
		"trader_plan":      state.TraderInvestmentPlan,
		"situation":        state.SituationSummary(),
		"history":          risk.History,
		"risky_response":   risk.CurrentRiskyResponse,
		"safe_response":    risk.CurrentSafeResponse,
		"neutral_response": risk.CurrentNeutralResponse,
	})
	if err != nil {
		return nil, err
	}

	msg, err := a.roster.chat(ctx, a.node, a.roster.quick(a.node), input)
	if err != nil {
		return nil, err
	}

	argument := a.agent + ": " + msg.Content
	risk.History += "\n" + argument
	switch a.speaker {
	case models.SpeakerRisky:
		risk.RiskyHistory += "\n" + argument
		risk.CurrentRiskyResponse = argument
	case models.SpeakerSafe:
		risk.SafeHistory += "\n" + argument
		risk.CurrentSafeResponse = argument
	case models.SpeakerNeutral:
		risk.NeutralHistory += "\n" + argument
		risk.CurrentNeutralResponse = argument
	}
	risk.LatestSpeaker = a.speaker
	risk.Count++

	return &models.StateDelta{RiskDebateState: risk}, nil
}
