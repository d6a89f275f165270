package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/models"
)

// ResearchManager judges the investment debate and writes the investment plan.
type ResearchManager struct {
	roster *Roster
	memory Memory
}

func NewResearchManager(r *Roster) *ResearchManager {
	return &ResearchManager{roster: r, memory: r.memory(consts.Memory_InvestJudge)}
}

func (a *ResearchManager) Run(ctx context.Context, state *models.TradingState) (*models.StateDelta, error) {
	memories, err := pastMemories(ctx, a.memory, state.SituationSummary(), 2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", consts.ResearchManager, err)
	}
	debate := state.InvestDebate()
	input, err := userPrompt(ctx, "research_manager", map[string]any{
		"history":       debate.History,
		"past_memories": memories,
	})
	if err != nil {
		return nil, err
	}

	msg, err := a.roster.chat(ctx, consts.ResearchManager, a.roster.deep(consts.ResearchManager), input)
	if err != nil {
		return nil, err
	}

	debate.JudgeDecision = msg.Content
	return &models.StateDelta{
		InvestmentPlan:        models.Str(msg.Content),
		InvestmentDebateState: debate,
	}, nil
}

// Trader turns the investment plan into a concrete transaction proposal.
type Trader struct {
	roster *Roster
	memory Memory
}

func NewTrader(r *Roster) *Trader {
	return &Trader{roster: r, memory: r.memory(consts.Memory_Trader)}
}

func (a *Trader) Run(ctx context.Context, state *models.TradingState) (*models.StateDelta, error) {
	situation := state.SituationSummary()
	memories, err := pastMemories(ctx, a.memory, situation, 2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", consts.Trader, err)
	}
	input, err := userPrompt(ctx, "trader", map[string]any{
		"ticker":          state.CompanyOfInterest,
		"situation":       situation,
		"investment_plan": state.InvestmentPlan,
		"past_memories":   memories,
	})
	if err != nil {
		return nil, err
	}

	msg, err := a.roster.chat(ctx, consts.Trader, a.roster.quick(consts.Trader), input)
	if err != nil {
		return nil, err
	}

	reply := schema.AssistantMessage(msg.Content, nil)
	reply.Name = consts.Agent_Trader
	return &models.StateDelta{
		TraderInvestmentPlan: models.Str(msg.Content),
		Messages:             []*schema.Message{reply},
	}, nil
}

// RiskJudge closes the risk debate with the final trade decision.
type RiskJudge struct {
	roster *Roster
	memory Memory
}

func NewRiskJudge(r *Roster) *RiskJudge {
	return &RiskJudge{roster: r, memory: r.memory(consts.Memory_RiskManager)}
}

func (a *RiskJudge) Run(ctx context.Context, state *models.TradingState) (*models.StateDelta, error) {
	memories, err := pastMemories(ctx, a.memory, state.SituationSummary(), 2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", consts.RiskJudge, err)
	}
	risk := state.RiskDebate()
	input, err := userPrompt(ctx, "risk_judge", map[string]any{
		"ticker":        state.CompanyOfInterest,
		"trader_plan":   state.TraderInvestmentPlan,
		"history":       risk.History,
		"past_memories": memories,
	})
	if err != nil {
		return nil, err
	}

	msg, err := a.roster.chat(ctx, consts.RiskJudge, a.roster.deep(consts.RiskJudge), input)
	if err != nil {
		return nil, err
	}

	risk.JudgeDecision = msg.Content
	return &models.StateDelta{
		FinalTradeDecision: models.Str(msg.Content),
		RiskDebateState:    risk,
	}, nil
}
