package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/internal/llm/fakellm"
	"github.com/dyike/agenttrader/internal/memory"
	"github.com/dyike/agenttrader/internal/tools"
	"github.com/dyike/agenttrader/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T) *tools.Gateway {
	t.Helper()
	tk := &tools.Toolkit{Online: false}
	gw, err := tools.NewGateway(context.Background(), tk.Tools()...)
	require.NoError(t, err)
	return gw
}

func TestAnalystRequestsTools(t *testing.T) {
	ctx := context.Background()
	quick := fakellm.New(fakellm.ToolCall("call-1", tools.ToolYFinanceData,
		`{"symbol":"NVDA","start_date":"2024-04-01","end_date":"2024-05-01"}`))
	r := &Roster{Quick: quick, Tools: newGateway(t)}

	a, err := NewAnalyst(ctx, r, MarketAnalyst)
	require.NoError(t, err)
	assert.Equal(t, []string{tools.ToolYFinanceData, tools.ToolTechnicalIndicators}, quick.BoundTools())

	state := models.NewTradingState("NVDA", "2024-05-01")
	delta, err := a.Run(ctx, state)
	require.NoError(t, err)
	require.Len(t, delta.Messages, 1)
	assert.Len(t, delta.Messages[0].ToolCalls, 1)
	assert.Nil(t, delta.MarketReport)

	input := quick.Input(0)
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Contains(t, input[0].Content, "get_yfinance_data, get_technical_indicators")
	assert.Contains(t, input[0].Content, "the current date is 2024-05-01")
	assert.Contains(t, input[0].Content, "The company we want to look at is NVDA")
	assert.Contains(t, input[0].Content, "technical indicators")
	assert.Equal(t, "Analyze NVDA for trading on 2024-05-01", input[1].Content)
}

func TestAnalystWritesReport(t *testing.T) {
	ctx := context.Background()
	quick := fakellm.Text("Sentiment is upbeat.")
	r := &Roster{Quick: quick, Tools: newGateway(t)}

	a, err := NewAnalyst(ctx, r, SocialAnalyst)
	require.NoError(t, err)
	assert.Equal(t, consts.SocialAnalyst, a.Name())

	delta, err := a.Run(ctx, models.NewTradingState("NVDA", "2024-05-01"))
	require.NoError(t, err)
	require.NotNil(t, delta.SentimentReport)
	assert.Equal(t, "Sentiment is upbeat.", *delta.SentimentReport)
	assert.Len(t, delta.Messages, 1)
}

func TestAnalystNeedsGateway(t *testing.T) {
	_, err := NewAnalyst(context.Background(), &Roster{Quick: fakellm.Text("x")}, NewsAnalyst)
	assert.Error(t, err)
}

func TestToolNodeAnswersEveryCall(t *testing.T) {
	ctx := context.Background()
	state := models.NewTradingState("NVDA", "2024-05-01")
	call := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "a", Function: schema.FunctionCall{Name: tools.ToolMacroNews, Arguments: `{"trade_date":"2024-05-01"}`}},
		{ID: "b", Function: schema.FunctionCall{Name: "no_such_tool", Arguments: `{}`}},
	})
	state.Messages = append(state.Messages, call)

	delta, err := NewToolNode(newGateway(t)).Run(ctx, state)
	require.NoError(t, err)
	require.Len(t, delta.Messages, 2)
	assert.Equal(t, "a", delta.Messages[0].ToolCallID)
	assert.Contains(t, delta.Messages[0].Content, "online tools are disabled")
	assert.Equal(t, "b", delta.Messages[1].ToolCallID)
	assert.Contains(t, delta.Messages[1].Content, "not available")
}

func TestClearMessages(t *testing.T) {
	delta, err := ClearMessages(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, delta.ResetMessages)
	require.Len(t, delta.Messages, 1)
	assert.Equal(t, schema.User, delta.Messages[0].Role)
	assert.Equal(t, "Continue", delta.Messages[0].Content)
}

func TestResearchersAlternate(t *testing.T) {
	ctx := context.Background()
	r := &Roster{Overrides: map[string]model.ToolCallingChatModel{
		consts.BullResearcher: fakellm.Text("growth is strong"),
		consts.BearResearcher: fakellm.Text("valuation is stretched"),
	}}
	state := models.NewTradingState("NVDA", "2024-05-01")

	delta, err := NewBullResearcher(r).Run(ctx, state)
	require.NoError(t, err)
	require.NoError(t, state.Apply(delta))

	delta, err = NewBearResearcher(r).Run(ctx, state)
	require.NoError(t, err)
	require.NoError(t, state.Apply(delta))

	debate := state.InvestmentDebateState
	assert.Equal(t, 2, debate.Count)
	assert.Equal(t, models.SpeakerBear, debate.LatestSpeaker)
	assert.Equal(t, "\nBull Analyst: growth is strong\nBear Analyst: valuation is stretched", debate.History)
	assert.Equal(t, "\nBull Analyst: growth is strong", debate.BullHistory)
	assert.Equal(t, "\nBear Analyst: valuation is stretched", debate.BearHistory)
	assert.Equal(t, "Bear Analyst: valuation is stretched", debate.CurrentResponse)
}

func TestResearcherUsesMemories(t *testing.T) {
	ctx := context.Background()
	bank, err := memory.NewBank(ctx, nil, memory.NewHashEmbedder(64))
	require.NoError(t, err)

	state := models.NewTradingState("NVDA", "2024-05-01")
	require.NoError(t, bank.Memory(consts.Memory_Bull).Add(ctx, []memory.Situation{
		{Situation: state.SituationSummary(), Recommendation: "Do not ignore stretched valuations."},
	}))

	quick := fakellm.Text("buy")
	_, err = NewBullResearcher(&Roster{Quick: quick, Memories: bank}).Run(ctx, state)
	require.NoError(t, err)
	assert.Contains(t, quick.Input(0)[0].Content, "Do not ignore stretched valuations.")

	bear := fakellm.Text("sell")
	_, err = NewBearResearcher(&Roster{Quick: bear, Memories: bank}).Run(ctx, state)
	require.NoError(t, err)
	assert.Contains(t, bear.Input(0)[0].Content, "No past memories found.")
}

func TestResearchManagerUsesDeepTier(t *testing.T) {
	ctx := context.Background()
	quick := fakellm.Text("quick")
	deep := fakellm.Text("Recommendation: Buy")
	r := &Roster{Quick: quick, Deep: deep}

	state := models.NewTradingState("NVDA", "2024-05-01")
	state.InvestmentDebateState.History = "\nBull Analyst: up\nBear Analyst: down"
	state.InvestmentDebateState.Count = 2

	delta, err := NewResearchManager(r).Run(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, 0, quick.Calls())
	assert.Equal(t, 1, deep.Calls())
	assert.Contains(t, deep.Input(0)[0].Content, "Bear Analyst: down")
	require.NotNil(t, delta.InvestmentPlan)
	assert.Equal(t, "Recommendation: Buy", *delta.InvestmentPlan)
	assert.Equal(t, "Recommendation: Buy", delta.InvestmentDebateState.JudgeDecision)
	assert.Equal(t, 2, delta.InvestmentDebateState.Count)
}

func TestTraderWritesPlan(t *testing.T) {
	ctx := context.Background()
	quick := fakellm.Text("FINAL TRANSACTION PROPOSAL: **BUY**")
	state := models.NewTradingState("NVDA", "2024-05-01")
	state.InvestmentPlan = "Accumulate on dips"

	delta, err := NewTrader(&Roster{Quick: quick}).Run(ctx, state)
	require.NoError(t, err)
	assert.Contains(t, quick.Input(0)[0].Content, "Accumulate on dips")
	require.NotNil(t, delta.TraderInvestmentPlan)
	assert.Equal(t, "FINAL TRANSACTION PROPOSAL: **BUY**", *delta.TraderInvestmentPlan)
	require.Len(t, delta.Messages, 1)
	assert.Equal(t, consts.Agent_Trader, delta.Messages[0].Name)
}

func TestRiskCommitteeRound(t *testing.T) {
	ctx := context.Background()
	r := &Roster{
		Quick: fakellm.Text("take the trade"),
		Deep:  fakellm.Text("Hold"),
	}
	state := models.NewTradingState("NVDA", "2024-05-01")
	state.TraderInvestmentPlan = "Buy 100 shares"

	for _, node := range []*RiskDebator{NewRiskyAnalyst(r), NewSafeAnalyst(r), NewNeutralAnalyst(r)} {
		delta, err := node.Run(ctx, state)
		require.NoError(t, err)
		require.NoError(t, state.Apply(delta))
	}

	risk := state.RiskDebateState
	assert.Equal(t, 3, risk.Count)
	assert.Equal(t, models.SpeakerNeutral, risk.LatestSpeaker)
	assert.Equal(t, "Risky Analyst: take the trade", risk.CurrentRiskyResponse)
	assert.Equal(t, "Safe Analyst: take the trade", risk.CurrentSafeResponse)
	assert.Equal(t, "Neutral Analyst: take the trade", risk.CurrentNeutralResponse)
	assert.Equal(t, 3, strings.Count(risk.History, "\n"))

	delta, err := NewRiskJudge(r).Run(ctx, state)
	require.NoError(t, err)
	require.NoError(t, state.Apply(delta))
	assert.Equal(t, "Hold", state.FinalTradeDecision)
	assert.Equal(t, "Hold", state.RiskDebateState.JudgeDecision)
	assert.Equal(t, 3, state.RiskDebateState.Count)
}

func TestModelFailurePropagates(t *testing.T) {
	boom := errors.New("upstream unavailable")
	r := &Roster{Quick: fakellm.Failing(boom)}

	_, err := NewBullResearcher(r).Run(context.Background(), models.NewTradingState("NVDA", "2024-05-01"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), consts.BullResearcher)
}

func TestLogHandlerCountsUsage(t *testing.T) {
	usage := &Usage{}
	h := NewLogHandler(usage)
	ctx := context.Background()
	info := &callbacks.RunInfo{Name: consts.Trader}

	h.OnStart(ctx, info, &model.CallbackInput{Messages: []*schema.Message{schema.UserMessage("hi")}})
	h.OnEnd(ctx, info, &model.CallbackOutput{
		Message:    schema.AssistantMessage("ok", nil),
		TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
	})

	calls, prompt, completion := usage.Totals()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 10, prompt)
	assert.Equal(t, 4, completion)
}

func TestLogHandlerScopesRunUsage(t *testing.T) {
	engine := &Usage{}
	h := NewLogHandler(engine)
	info := &callbacks.RunInfo{Name: consts.Trader}
	end := func(ctx context.Context, prompt int) {
		h.OnEnd(ctx, info, &model.CallbackOutput{
			Message:    schema.AssistantMessage("ok", nil),
			TokenUsage: &model.TokenUsage{PromptTokens: prompt, CompletionTokens: 1},
		})
	}

	first, second := &Usage{}, &Usage{}
	end(WithRunUsage(context.Background(), first), 10)
	end(WithRunUsage(context.Background(), second), 7)
	end(WithRunUsage(context.Background(), second), 3)

	calls, prompt, _ := first.Totals()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 10, prompt)
	calls, prompt, _ = second.Totals()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 10, prompt)
	calls, prompt, _ = engine.Totals()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 20, prompt)
	assert.Nil(t, RunUsage(context.Background()))
}

func TestReflectionTargetsSkipEmpty(t *testing.T) {
	state := models.NewTradingState("NVDA", "2024-05-01")
	state.TraderInvestmentPlan = "Buy"
	state.RiskDebateState.JudgeDecision = "Hold"

	targets := ReflectionTargets(state)
	require.Len(t, targets, 2)
	assert.Equal(t, consts.Memory_Trader, targets[0].Role)
	assert.Equal(t, consts.Memory_RiskManager, targets[1].Role)
}

func TestReflectorPrompt(t *testing.T) {
	deep := fakellm.Text("Lesson: respect momentum.")
	rf := NewReflector(&Roster{Deep: deep})

	out, err := rf.Reflect(context.Background(),
		ReflectionTarget{Role: consts.Memory_Trader, Decision: "Sell"}, "Market Report: strong", 4.5)
	require.NoError(t, err)
	assert.Equal(t, "Lesson: respect momentum.", out)
	prompt := deep.Input(0)[0].Content
	assert.Contains(t, prompt, "+4.50%")
	assert.Contains(t, prompt, "trader_memory")
	assert.Contains(t, prompt, "Sell")
}
