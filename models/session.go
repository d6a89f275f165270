package models

import "time"

const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

type SessionRecord struct {
	ID         string    `json:"id"`
	Ticker     string    `json:"ticker"`
	TradeDate  string    `json:"trade_date"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	FinalState string    `json:"final_state,omitempty"` // JSON encoded TradingState, empty until the run ends
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StepRecord is one executed node of a session.
type StepRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Node      string    `json:"node"`
	Delta     string    `json:"delta"` // JSON encoded StateDelta
	CreatedAt time.Time `json:"created_at"`
}
