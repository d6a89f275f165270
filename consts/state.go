package consts

// Speaker names used as transcript prefixes, "<name>: <content>".
const (
	Agent_BullAnalyst    = "Bull Analyst"
	Agent_BearAnalyst    = "Bear Analyst"
	Agent_Trader         = "Trader"
	Agent_RiskyAnalyst   = "Risky Analyst"
	Agent_SafeAnalyst    = "Safe Analyst"
	Agent_NeutralAnalyst = "Neutral Analyst"
)

// Memory collections, one per role.
const (
	Memory_Bull        = "bull_memory"
	Memory_Bear        = "bear_memory"
	Memory_Trader      = "trader_memory"
	Memory_InvestJudge = "invest_judge_memory"
	Memory_RiskManager = "risk_manager_memory"
)

// Continue is the placeholder turn left after message pruning.
const Continue = "Continue"
