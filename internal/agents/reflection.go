package agents

import (
	"context"
	"fmt"

	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/models"
)

// ReflectionTarget is the decision a remembering role made during a run.
type ReflectionTarget struct {
	Role     string
	Decision string
}

// ReflectionTargets extracts, per memory role, the decision recorded in state.
// Roles that produced nothing are skipped.
func ReflectionTargets(state *models.TradingState) []ReflectionTarget {
	debate := state.InvestDebate()
	risk := state.RiskDebate()
	all := []ReflectionTarget{
		{consts.Memory_Bull, debate.BullHistory},
		{consts.Memory_Bear, debate.BearHistory},
		{consts.Memory_Trader, state.TraderInvestmentPlan},
		{consts.Memory_InvestJudge, debate.JudgeDecision},
		{consts.Memory_RiskManager, risk.JudgeDecision},
	}
	out := all[:0]
	for _, t := range all {
		if t.Decision != "" {
			out = append(out, t)
		}
	}
	return out
}

// Reflector asks the deep model what a role should learn from an outcome.
type Reflector struct {
	roster *Roster
}

func NewReflector(r *Roster) *Reflector {
	return &Reflector{roster: r}
}

func (rf *Reflector) Reflect(ctx context.Context, target ReflectionTarget, situation string, returns float64) (string, error) {
	input, err := userPrompt(ctx, "reflection", map[string]any{
		"role":      target.Role,
		"returns":   fmt.Sprintf("%+.2f%%", returns),
		"situation": situation,
		"decision":  target.Decision,
	})
	if err != nil {
		return "", err
	}
	msg, err := rf.roster.chat(ctx, "Reflection", rf.roster.Deep, input)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}
