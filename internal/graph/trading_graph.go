package graph

import (
	"context"
	"fmt"

	"github.com/dyike/agenttrader/config"
	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/internal/agents"
	"github.com/dyike/agenttrader/models"
)

// analystStage ties an analyst to its tool node and message clear node.
type analystStage struct {
	kind  agents.AnalystKind
	node  string
	tools string
	clear string
}

var analystStages = []analystStage{
	{agents.MarketAnalyst, consts.MarketAnalyst, consts.MarketTools, consts.MarketMsgClear},
	{agents.SocialAnalyst, consts.SocialAnalyst, consts.SocialTools, consts.SocialMsgClear},
	{agents.NewsAnalyst, consts.NewsAnalyst, consts.NewsTools, consts.NewsMsgClear},
	{agents.FundamentalsAnalyst, consts.FundamentalsAnalyst, consts.FundamentalsTools, consts.FundamentalsMsgClear},
}

// TradingAgentsGraph is the compiled trading pipeline: four analysts in
// sequence, the bull/bear debate, the research manager, the trader, the risk
// debate and the risk judge.
type TradingAgentsGraph struct {
	graph *Graph
	logic *ConditionalLogic
}

func NewTradingAgentsGraph(ctx context.Context, cfg *config.Config, roster *agents.Roster) (*TradingAgentsGraph, error) {
	logic := NewConditionalLogic(cfg.MaxDebateRounds, cfg.MaxRiskDiscussRounds)
	def, err := TradingDefinition(ctx, roster, logic)
	if err != nil {
		return nil, err
	}
	g, err := Compile(def, WithMaxSteps(cfg.MaxRecurLimit))
	if err != nil {
		return nil, err
	}
	return &TradingAgentsGraph{graph: g, logic: logic}, nil
}

// TradingDefinition builds the trading topology as data.
func TradingDefinition(ctx context.Context, roster *agents.Roster, logic *ConditionalLogic) (Definition, error) {
	def := Definition{
		Entry: consts.MarketAnalyst,
		Nodes: make(map[string]NodeFunc),
		Edges: make(map[string]Edge),
	}

	toolNode := agents.NewToolNode(roster.Tools)
	for i, stage := range analystStages {
		analyst, err := agents.NewAnalyst(ctx, roster, stage.kind)
		if err != nil {
			return Definition{}, fmt.Errorf("build %s: %w", stage.node, err)
		}
		def.Nodes[stage.node] = analyst.Run
		def.Nodes[stage.tools] = toolNode.Run
		def.Nodes[stage.clear] = agents.ClearMessages

		def.Edges[stage.node] = Conditional(logic.ShouldContinueAnalyst, map[string]string{
			consts.RouteTools:    stage.tools,
			consts.RouteContinue: stage.clear,
		})
		def.Edges[stage.tools] = Static(stage.node)

		next := consts.BullResearcher
		if i+1 < len(analystStages) {
			next = analystStages[i+1].node
		}
		def.Edges[stage.clear] = Static(next)
	}

	debateRoutes := map[string]string{
		consts.BullResearcher:  consts.BullResearcher,
		consts.BearResearcher:  consts.BearResearcher,
		consts.ResearchManager: consts.ResearchManager,
	}
	def.Nodes[consts.BullResearcher] = agents.NewBullResearcher(roster).Run
	def.Nodes[consts.BearResearcher] = agents.NewBearResearcher(roster).Run
	def.Edges[consts.BullResearcher] = Conditional(logic.ShouldContinueDebate, debateRoutes)
	def.Edges[consts.BearResearcher] = Conditional(logic.ShouldContinueDebate, debateRoutes)

	def.Nodes[consts.ResearchManager] = agents.NewResearchManager(roster).Run
	def.Edges[consts.ResearchManager] = Static(consts.Trader)

	def.Nodes[consts.Trader] = agents.NewTrader(roster).Run
	def.Edges[consts.Trader] = Static(consts.RiskyAnalyst)

	riskRoutes := map[string]string{
		consts.RiskyAnalyst:   consts.RiskyAnalyst,
		consts.SafeAnalyst:    consts.SafeAnalyst,
		consts.NeutralAnalyst: consts.NeutralAnalyst,
		consts.RiskJudge:      consts.RiskJudge,
	}
	def.Nodes[consts.RiskyAnalyst] = agents.NewRiskyAnalyst(roster).Run
	def.Nodes[consts.SafeAnalyst] = agents.NewSafeAnalyst(roster).Run
	def.Nodes[consts.NeutralAnalyst] = agents.NewNeutralAnalyst(roster).Run
	for _, id := range []string{consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst} {
		def.Edges[id] = Conditional(logic.ShouldContinueRiskAnalysis, riskRoutes)
	}

	def.Nodes[consts.RiskJudge] = agents.NewRiskJudge(roster).Run
	def.Edges[consts.RiskJudge] = Static(END)

	return def, nil
}

func (t *TradingAgentsGraph) Graph() *Graph { return t.graph }

// Propagate runs one analysis for ticker on tradeDate.
func (t *TradingAgentsGraph) Propagate(ctx context.Context, ticker, tradeDate string) (*models.TradingState, error) {
	return t.graph.Invoke(ctx, models.NewTradingState(ticker, tradeDate))
}

// Stream runs one analysis and reports every node as it completes.
func (t *TradingAgentsGraph) Stream(ctx context.Context, ticker, tradeDate string) <-chan Event {
	return t.graph.Stream(ctx, models.NewTradingState(ticker, tradeDate))
}
