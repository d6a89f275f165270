package models

import (
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

var (
	ErrWriteOnce      = errors.New("write-once field already set")
	ErrCountRegressed = errors.New("debate count decreased")
)

// StateDelta is the subset of TradingState a node writes. Nil fields are left
// untouched by Apply.
type StateDelta struct {
	Messages      []*schema.Message `json:"messages,omitempty"`
	ResetMessages bool              `json:"reset_messages,omitempty"`

	MarketReport       *string `json:"market_report,omitempty"`
	SentimentReport    *string `json:"sentiment_report,omitempty"`
	NewsReport         *string `json:"news_report,omitempty"`
	FundamentalsReport *string `json:"fundamentals_report,omitempty"`

	InvestmentDebateState *InvestDebateState `json:"investment_debate_state,omitempty"`
	RiskDebateState       *RiskDebateState   `json:"risk_debate_state,omitempty"`

	TraderInvestmentPlan *string `json:"trader_investment_plan,omitempty"`
	InvestmentPlan       *string `json:"investment_plan,omitempty"`
	FinalTradeDecision   *string `json:"final_trade_decision,omitempty"`
}

// Str is a helper for filling StateDelta string pointers.
func Str(v string) *string { return &v }

// Apply merges d into s. Debate records are replaced wholesale by copy,
// messages are appended unless the same message is already present, and
// write-once fields reject a different non-empty value.
func (s *TradingState) Apply(d *StateDelta) error {
	if d == nil {
		return nil
	}

	// validate everything before mutating so a rejected delta leaves s intact
	writes := []struct {
		name string
		dst  *string
		src  *string
	}{
		{"market_report", &s.MarketReport, d.MarketReport},
		{"sentiment_report", &s.SentimentReport, d.SentimentReport},
		{"news_report", &s.NewsReport, d.NewsReport},
		{"fundamentals_report", &s.FundamentalsReport, d.FundamentalsReport},
		{"trader_investment_plan", &s.TraderInvestmentPlan, d.TraderInvestmentPlan},
		{"investment_plan", &s.InvestmentPlan, d.InvestmentPlan},
		{"final_trade_decision", &s.FinalTradeDecision, d.FinalTradeDecision},
	}
	for _, w := range writes {
		if w.src == nil || *w.dst == "" || *w.src == "" {
			continue
		}
		if *w.dst != *w.src {
			return fmt.Errorf("%s: %w", w.name, ErrWriteOnce)
		}
	}
	if d.InvestmentDebateState != nil && s.InvestmentDebateState != nil &&
		d.InvestmentDebateState.Count < s.InvestmentDebateState.Count {
		return fmt.Errorf("investment_debate_state: %w", ErrCountRegressed)
	}
	if d.RiskDebateState != nil && s.RiskDebateState != nil &&
		d.RiskDebateState.Count < s.RiskDebateState.Count {
		return fmt.Errorf("risk_debate_state: %w", ErrCountRegressed)
	}

	for _, w := range writes {
		if w.src != nil && *w.src != "" {
			*w.dst = *w.src
		}
	}

	if d.InvestmentDebateState != nil {
		cp := *d.InvestmentDebateState
		s.InvestmentDebateState = &cp
	}
	if d.RiskDebateState != nil {
		cp := *d.RiskDebateState
		s.RiskDebateState = &cp
	}

	if d.ResetMessages {
		s.Messages = append([]*schema.Message(nil), d.Messages...)
		return nil
	}
	for _, msg := range d.Messages {
		if !s.hasMessage(msg) {
			s.Messages = append(s.Messages, msg)
		}
	}
	return nil
}

func (s *TradingState) hasMessage(msg *schema.Message) bool {
	for _, m := range s.Messages {
		if m == msg {
			return true
		}
	}
	return false
}
