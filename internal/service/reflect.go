package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyike/agenttrader/internal/agents"
	"github.com/dyike/agenttrader/internal/memory"
	"github.com/dyike/agenttrader/models"
	"github.com/kataras/golog"
)

var ErrReflectionDisabled = errors.New("reflection is not configured")

type Reflector interface {
	Reflect(ctx context.Context, target agents.ReflectionTarget, situation string, returns float64) (string, error)
}

// Reflection is the lesson stored for one role.
type Reflection struct {
	Role       string `json:"role"`
	Reflection string `json:"reflection"`
}

// Reflect reviews a completed session once its return (in percent) is known
// and stores one lesson per role in that role's memory, keyed by the
// session's situation summary.
func (a *Analyzer) Reflect(ctx context.Context, sessionID string, returns float64) ([]Reflection, error) {
	if a.store == nil {
		return nil, ErrNoHistory
	}
	if a.reflector == nil || a.memories == nil {
		return nil, ErrReflectionDisabled
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}
	defer a.inflight.Done()

	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionCompleted || sess.FinalState == "" {
		return nil, fmt.Errorf("%w: session %s is %s", ErrInvalidRequest, sessionID, sess.Status)
	}
	var state models.TradingState
	if err := json.Unmarshal([]byte(sess.FinalState), &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	situation := state.SituationSummary()
	var out []Reflection
	for _, target := range agents.ReflectionTargets(&state) {
		text, err := a.reflector.Reflect(ctx, target, situation, returns)
		if err != nil {
			return out, fmt.Errorf("reflect %s: %w", target.Role, err)
		}
		mem := a.memories.Memory(target.Role)
		if mem == nil {
			continue
		}
		if err := mem.Add(ctx, []memory.Situation{{Situation: situation, Recommendation: text}}); err != nil {
			return out, fmt.Errorf("store reflection for %s: %w", target.Role, err)
		}
		out = append(out, Reflection{Role: target.Role, Reflection: text})
	}
	golog.Infof("session %s: stored %d reflections for returns %+.2f%%", sessionID, len(out), returns)
	return out, nil
}
