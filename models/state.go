package models

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Speaker tags the debate participant that produced the latest turn.
type Speaker string

const (
	SpeakerNone    Speaker = ""
	SpeakerBull    Speaker = "bull"
	SpeakerBear    Speaker = "bear"
	SpeakerRisky   Speaker = "risky"
	SpeakerSafe    Speaker = "safe"
	SpeakerNeutral Speaker = "neutral"
)

// InvestDebateState represents the investment debate state
type InvestDebateState struct {
	BullHistory     string  `json:"bull_history"`     // Bullish conversation history
	BearHistory     string  `json:"bear_history"`     // Bearish conversation history
	History         string  `json:"history"`          // Conversation history
	CurrentResponse string  `json:"current_response"` // Latest response, prefixed with the speaker name
	LatestSpeaker   Speaker `json:"latest_speaker"`
	JudgeDecision   string  `json:"judge_decision"` // Research manager's decision
	Count           int     `json:"count"`          // Turns taken
}

// RiskDebateState represents the risk management team debate state
type RiskDebateState struct {
	RiskyHistory           string  `json:"risky_history"`
	SafeHistory            string  `json:"safe_history"`
	NeutralHistory         string  `json:"neutral_history"`
	History                string  `json:"history"`
	LatestSpeaker          Speaker `json:"latest_speaker"`
	CurrentRiskyResponse   string  `json:"current_risky_response"`
	CurrentSafeResponse    string  `json:"current_safe_response"`
	CurrentNeutralResponse string  `json:"current_neutral_response"`
	JudgeDecision          string  `json:"judge_decision"`
	Count                  int     `json:"count"`
}

type TradingState struct {
	Messages          []*schema.Message `json:"messages"`
	CompanyOfInterest string            `json:"company_of_interest"`
	TradeDate         string            `json:"trade_date"`

	MarketReport       string `json:"market_report"`
	SentimentReport    string `json:"sentiment_report"`
	NewsReport         string `json:"news_report"`
	FundamentalsReport string `json:"fundamentals_report"`

	InvestmentDebateState *InvestDebateState `json:"investment_debate_state"`
	RiskDebateState       *RiskDebateState   `json:"risk_debate_state"`

	TraderInvestmentPlan string `json:"trader_investment_plan"`
	InvestmentPlan       string `json:"investment_plan"`
	FinalTradeDecision   string `json:"final_trade_decision"`
}

func NewTradingState(ticker, tradeDate string) *TradingState {
	return &TradingState{
		Messages: []*schema.Message{
			schema.UserMessage(fmt.Sprintf("Analyze %s for trading on %s", ticker, tradeDate)),
		},
		CompanyOfInterest:     ticker,
		TradeDate:             tradeDate,
		InvestmentDebateState: &InvestDebateState{},
		RiskDebateState:       &RiskDebateState{},
	}
}

// LastMessage returns the most recent conversation turn, or nil.
func (s *TradingState) LastMessage() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// Clone returns a copy that shares message pointers but no mutable records.
func (s *TradingState) Clone() *TradingState {
	cp := *s
	cp.Messages = append([]*schema.Message(nil), s.Messages...)
	cp.InvestmentDebateState = s.InvestDebate()
	cp.RiskDebateState = s.RiskDebate()
	return &cp
}

// InvestDebate returns a private copy of the investment debate record.
func (s *TradingState) InvestDebate() *InvestDebateState {
	if s.InvestmentDebateState == nil {
		return &InvestDebateState{}
	}
	cp := *s.InvestmentDebateState
	return &cp
}

// RiskDebate returns a private copy of the risk debate record.
func (s *TradingState) RiskDebate() *RiskDebateState {
	if s.RiskDebateState == nil {
		return &RiskDebateState{}
	}
	cp := *s.RiskDebateState
	return &cp
}

// SituationSummary joins the four analyst reports, used as the memory lookup key.
func (s *TradingState) SituationSummary() string {
	return fmt.Sprintf("Market Report: %s\nSentiment Report: %s\nNews Report: %s\nFundamentals Report: %s",
		s.MarketReport, s.SentimentReport, s.NewsReport, s.FundamentalsReport)
}
