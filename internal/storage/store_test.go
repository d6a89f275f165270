package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dyike/agenttrader/models"
	"github.com/dyike/agenttrader/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewStore(context.Background(), db)
	require.NoError(t, err)
	return s
}

func TestRecorderPersistsRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rec, err := NewRecorder(ctx, s, models.SessionRecord{ID: "run-1", Ticker: "NVDA", TradeDate: "2024-05-01"})
	require.NoError(t, err)

	rec.Record("Market Analyst", &models.StateDelta{MarketReport: models.Str("up")})
	rec.Record("Msg Clear Market", &models.StateDelta{ResetMessages: true})

	state := models.NewTradingState("NVDA", "2024-05-01")
	state.FinalTradeDecision = "Hold"
	require.NoError(t, rec.Finish(ctx, state, nil))

	got, err := s.GetSession(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Empty(t, got.Error)
	assert.False(t, got.CreatedAt.IsZero())

	var final models.TradingState
	require.NoError(t, json.Unmarshal([]byte(got.FinalState), &final))
	assert.Equal(t, "Hold", final.FinalTradeDecision)

	steps, err := s.ListSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].Seq)
	assert.Equal(t, "Market Analyst", steps[0].Node)
	assert.Contains(t, steps[0].Delta, `"market_report":"up"`)
	assert.Equal(t, "Msg Clear Market", steps[1].Node)
}

func TestRecorderMarksFailure(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rec, err := NewRecorder(ctx, s, models.SessionRecord{ID: "run-2", Ticker: "AAPL", TradeDate: "2024-05-01"})
	require.NoError(t, err)
	require.NoError(t, rec.Finish(ctx, nil, errors.New("recursion limit reached")))

	got, err := s.GetSession(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, got.Status)
	assert.Equal(t, "recursion limit reached", got.Error)
	assert.Empty(t, got.FinalState)
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateSession(ctx, models.SessionRecord{ID: id, Ticker: "NVDA", TradeDate: "2024-05-01"}))
	}

	list, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, models.SessionRunning, list[0].Status)
}

func TestGetSessionNotFound(t *testing.T) {
	_, err := newStore(t).GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
