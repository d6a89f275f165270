package models

// AnalyzeRequest is the input of one analysis run. An empty TradeDate means
// two days before today.
type AnalyzeRequest struct {
	Ticker    string `json:"ticker"`
	TradeDate string `json:"trade_date,omitempty"`
}

// AnalyzeResponse is the synchronous result. Fields a run never reached are empty.
type AnalyzeResponse struct {
	Ticker             string `json:"ticker"`
	TradeDate          string `json:"trade_date"`
	FinalTradeDecision string `json:"final_trade_decision"`
	MarketReport       string `json:"market_report"`
	SentimentReport    string `json:"sentiment_report"`
	NewsReport         string `json:"news_report"`
	FundamentalsReport string `json:"fundamentals_report"`
	InvestmentPlan     string `json:"investment_plan"`
}

// StreamEvent is one progress event of a streaming run. Node events carry only
// Node; the terminal event has Done set plus the result fields, and Error when
// the run failed.
type StreamEvent struct {
	Node  string `json:"node,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`

	*AnalyzeResponse
}

func NewAnalyzeResponse(state *TradingState) *AnalyzeResponse {
	if state == nil {
		return &AnalyzeResponse{}
	}
	return &AnalyzeResponse{
		Ticker:             state.CompanyOfInterest,
		TradeDate:          state.TradeDate,
		FinalTradeDecision: state.FinalTradeDecision,
		MarketReport:       state.MarketReport,
		SentimentReport:    state.SentimentReport,
		NewsReport:         state.NewsReport,
		FundamentalsReport: state.FundamentalsReport,
		InvestmentPlan:     state.InvestmentPlan,
	}
}
