package consts

// Graph node ids.
const (
	// 分析师节点
	MarketAnalyst       = "Market Analyst"
	SocialAnalyst       = "Social Analyst"
	NewsAnalyst         = "News Analyst"
	FundamentalsAnalyst = "Fundamentals Analyst"

	// 工具节点, one per analyst so each loop returns to its owner
	MarketTools       = "tools_market"
	SocialTools       = "tools_social"
	NewsTools         = "tools_news"
	FundamentalsTools = "tools_fundamentals"

	// 消息清理节点
	MarketMsgClear       = "Msg Clear Market"
	SocialMsgClear       = "Msg Clear Social"
	NewsMsgClear         = "Msg Clear News"
	FundamentalsMsgClear = "Msg Clear Fundamentals"

	// 研究员节点
	BullResearcher  = "Bull Researcher"
	BearResearcher  = "Bear Researcher"
	ResearchManager = "Research Manager"

	// 交易员节点
	Trader = "Trader"

	// 风险分析节点
	RiskyAnalyst   = "Risky Analyst"
	SafeAnalyst    = "Safe Analyst"
	NeutralAnalyst = "Neutral Analyst"
	RiskJudge      = "Risk Judge"

	// End terminates a run.
	End = "__end__"
)

// Analyst routing labels.
const (
	RouteTools    = "tools"
	RouteContinue = "continue"
)
