package service

import (
	"context"

	"github.com/dyike/agenttrader/models"
)

// RunDetail is a stored session with its executed steps.
type RunDetail struct {
	Session models.SessionRecord `json:"session"`
	Steps   []models.StepRecord  `json:"steps"`
}

// History lists recent sessions, newest first.
func (a *Analyzer) History(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	if a.store == nil {
		return nil, ErrNoHistory
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.inflight.Done()
	return a.store.ListSessions(ctx, limit)
}

func (a *Analyzer) Run(ctx context.Context, sessionID string) (*RunDetail, error) {
	if a.store == nil {
		return nil, ErrNoHistory
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.inflight.Done()

	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	steps, err := a.store.ListSteps(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Session: *sess, Steps: steps}, nil
}
