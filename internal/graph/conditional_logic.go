package graph

import (
	"strings"

	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/models"
)

// ConditionalLogic holds the routing policies of the trading graph. All of
// them are pure functions of the state.
type ConditionalLogic struct {
	MaxDebateRounds      int
	MaxRiskDiscussRounds int
}

func NewConditionalLogic(maxDebateRounds, maxRiskDiscussRounds int) *ConditionalLogic {
	return &ConditionalLogic{
		MaxDebateRounds:      maxDebateRounds,
		MaxRiskDiscussRounds: maxRiskDiscussRounds,
	}
}

// ShouldContinueAnalyst loops an analyst through its tool node while the
// last message still asks for tools.
func (cl *ConditionalLogic) ShouldContinueAnalyst(state *models.TradingState) string {
	if last := state.LastMessage(); last != nil && len(last.ToolCalls) > 0 {
		return consts.RouteTools
	}
	return consts.RouteContinue
}

// ShouldContinueDebate alternates bull and bear until each had
// MaxDebateRounds turns, then hands over to the research manager.
func (cl *ConditionalLogic) ShouldContinueDebate(state *models.TradingState) string {
	debate := state.InvestmentDebateState
	if debate == nil {
		return consts.BullResearcher
	}
	if debate.Count >= 2*cl.MaxDebateRounds {
		return consts.ResearchManager
	}
	switch debate.LatestSpeaker {
	case models.SpeakerBull:
		return consts.BearResearcher
	case models.SpeakerBear:
		return consts.BullResearcher
	}
	// records written before the speaker tag existed only carry the prefix
	if strings.HasPrefix(debate.CurrentResponse, "Bull") {
		return consts.BearResearcher
	}
	return consts.BullResearcher
}

// ShouldContinueRiskAnalysis rotates risky, safe and neutral until each had
// MaxRiskDiscussRounds turns, then hands over to the risk judge.
func (cl *ConditionalLogic) ShouldContinueRiskAnalysis(state *models.TradingState) string {
	risk := state.RiskDebateState
	if risk == nil {
		return consts.RiskyAnalyst
	}
	if risk.Count >= 3*cl.MaxRiskDiscussRounds {
		return consts.RiskJudge
	}
	switch risk.LatestSpeaker {
	case models.SpeakerRisky:
		return consts.SafeAnalyst
	case models.SpeakerSafe:
		return consts.NeutralAnalyst
	default:
		return consts.RiskyAnalyst
	}
}
