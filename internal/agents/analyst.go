package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/consts"
	"github.com/dyike/agenttrader/internal/tools"
	"github.com/dyike/agenttrader/models"
)

type AnalystKind int

const (
	MarketAnalyst AnalystKind = iota
	SocialAnalyst
	NewsAnalyst
	FundamentalsAnalyst
)

type analystProfile struct {
	node   string
	prompt string
	tools  []string
	report func(d *models.StateDelta, report string)
}

var analystProfiles = map[AnalystKind]analystProfile{
	MarketAnalyst: {
		node:   consts.MarketAnalyst,
		prompt: "market_analyst",
		tools:  []string{tools.ToolYFinanceData, tools.ToolTechnicalIndicators},
		report: func(d *models.StateDelta, r string) { d.MarketReport = models.Str(r) },
	},
	SocialAnalyst: {
		node:   consts.SocialAnalyst,
		prompt: "social_analyst",
		tools:  []string{tools.ToolSocialSentiment},
		report: func(d *models.StateDelta, r string) { d.SentimentReport = models.Str(r) },
	},
	NewsAnalyst: {
		node:   consts.NewsAnalyst,
		prompt: "news_analyst",
		tools:  []string{tools.ToolFinnhubNews, tools.ToolMacroNews},
		report: func(d *models.StateDelta, r string) { d.NewsReport = models.Str(r) },
	},
	FundamentalsAnalyst: {
		node:   consts.FundamentalsAnalyst,
		prompt: "fundamentals_analyst",
		tools:  []string{tools.ToolFundamentalAnalysis},
		report: func(d *models.StateDelta, r string) { d.FundamentalsReport = models.Str(r) },
	},
}

// AnalystKinds lists the analysts in pipeline order.
var AnalystKinds = []AnalystKind{MarketAnalyst, SocialAnalyst, NewsAnalyst, FundamentalsAnalyst}

// Analyst is a tool-using agent that either asks for data or writes its report.
type Analyst struct {
	roster   *Roster
	profile  analystProfile
	model    model.ToolCallingChatModel
	template prompt.ChatTemplate
}

func NewAnalyst(ctx context.Context, r *Roster, kind AnalystKind) (*Analyst, error) {
	profile, ok := analystProfiles[kind]
	if !ok {
		return nil, fmt.Errorf("unknown analyst kind %d", kind)
	}
	if r.Tools == nil {
		return nil, fmt.Errorf("%s: no tool gateway", profile.node)
	}
	infos, err := r.Tools.Infos(profile.tools...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", profile.node, err)
	}
	base := r.quick(profile.node)
	if base == nil {
		return nil, fmt.Errorf("%s: no chat model configured", profile.node)
	}
	bound, err := base.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("%s: bind tools: %w", profile.node, err)
	}

	system, err := LoadPrompt("analyst_system")
	if err != nil {
		return nil, err
	}
	role, err := LoadPrompt(profile.prompt)
	if err != nil {
		return nil, err
	}
	// the role text is substituted as a literal, so only the shared frame is a template
	system = strings.ReplaceAll(system, "{system_message}", escapeBraces(role))
	system = strings.ReplaceAll(system, "{tool_names}", escapeBraces(strings.Join(profile.tools, ", ")))

	return &Analyst{
		roster:  r,
		profile: profile,
		model:   bound,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(system),
			schema.MessagesPlaceholder("messages", false),
		),
	}, nil
}

func (a *Analyst) Name() string { return a.profile.node }

// Tools returns the names of the tools the analyst may call.
func (a *Analyst) Tools() []string { return append([]string(nil), a.profile.tools...) }

func (a *Analyst) Run(ctx context.Context, state *models.TradingState) (*models.StateDelta, error) {
	input, err := a.template.Format(ctx, map[string]any{
		"messages":     state.Messages,
		"current_date": state.TradeDate,
		"ticker":       state.CompanyOfInterest,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: format prompt: %w", a.profile.node, err)
	}

	msg, err := a.roster.chat(ctx, a.profile.node, a.model, input)
	if err != nil {
		return nil, err
	}

	delta := &models.StateDelta{Messages: []*schema.Message{msg}}
	if len(msg.ToolCalls) == 0 {
		a.profile.report(delta, msg.Content)
	}
	return delta, nil
}

func escapeBraces(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}
