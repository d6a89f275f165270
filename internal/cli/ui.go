package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/agenttrader/config"
	"github.com/dyike/agenttrader/internal/processing"
	"github.com/dyike/agenttrader/internal/service"
	"github.com/dyike/agenttrader/models"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	sectionStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 1).
			Width(80)

	decisionStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("#EF4444")).
			Padding(0, 1).
			Width(80)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(22)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	inProgressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

func renderHeader(ticker, date string) string {
	if date == "" {
		date = "default date"
	}
	return headerStyle.Render(fmt.Sprintf("Analysis: %s | Date: %s", ticker, date))
}

func renderStep(n int, node string) string {
	return fmt.Sprintf("%s %s", pendingStyle.Render(fmt.Sprintf("[%02d]", n)), completedStyle.Render(node))
}

func renderSection(title, body string) string {
	return sectionStyle.Render(titleStyle.Render(title) + "\n\n" + strings.TrimSpace(body))
}

// renderResponse prints every report the run produced, then the final decision.
func renderResponse(resp *models.AnalyzeResponse) string {
	sections := []struct {
		title string
		body  string
	}{
		{"Market Analysis", resp.MarketReport},
		{"Social Sentiment", resp.SentimentReport},
		{"News Analysis", resp.NewsReport},
		{"Fundamentals", resp.FundamentalsReport},
		{"Research Team Decision", resp.InvestmentPlan},
	}

	var parts []string
	for _, s := range sections {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		parts = append(parts, renderSection(s.title, s.body))
	}
	if strings.TrimSpace(resp.FinalTradeDecision) != "" {
		parts = append(parts, decisionStyle.Render(
			errorStyle.Render(fmt.Sprintf("Final Trade Decision: %s %s", resp.Ticker, resp.TradeDate))+
				"\n\n"+strings.TrimSpace(resp.FinalTradeDecision)))
		sig := processing.Extract(resp.FinalTradeDecision)
		parts = append(parts, titleStyle.Render(fmt.Sprintf("Signal: %s (%s, %.0f%%)", sig.Action, sig.Source, sig.Confidence*100)))
	} else {
		parts = append(parts, pendingStyle.Render("No final trade decision was reached"))
	}
	return strings.Join(parts, "\n")
}

func renderUsage(calls, prompt, completion int) string {
	return pendingStyle.Render(fmt.Sprintf("LLM calls: %d | prompt tokens: %d | completion tokens: %d", calls, prompt, completion))
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case models.SessionCompleted:
		return completedStyle
	case models.SessionFailed:
		return errorStyle
	default:
		return inProgressStyle
	}
}

func renderSessions(sessions []models.SessionRecord) string {
	if len(sessions) == 0 {
		return pendingStyle.Render("No runs recorded yet")
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%-36s  %-8s  %-10s  %-9s  %s", "SESSION", "TICKER", "DATE", "STATUS", "STARTED")))
	sb.WriteString("\n")
	for _, s := range sessions {
		sb.WriteString(fmt.Sprintf("%-36s  %-8s  %-10s  %s  %s\n",
			s.ID, s.Ticker, s.TradeDate,
			statusStyle(s.Status).Render(fmt.Sprintf("%-9s", s.Status)),
			s.CreatedAt.Format("2006-01-02 15:04")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderRun(detail *service.RunDetail) string {
	var sb strings.Builder
	s := detail.Session
	sb.WriteString(headerStyle.Render(fmt.Sprintf("Run %s | %s %s | %s", s.ID, s.Ticker, s.TradeDate, s.Status)))
	sb.WriteString("\n")
	for _, step := range detail.Steps {
		sb.WriteString(renderStep(step.Seq, step.Node))
		sb.WriteString("\n")
	}
	if s.Error != "" {
		sb.WriteString(errorStyle.Render("Error: " + s.Error))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderReportFiles(files []service.ReportFile) string {
	if len(files) == 0 {
		return pendingStyle.Render("No reports found")
	}
	var sb strings.Builder
	for _, f := range files {
		sb.WriteString(fmt.Sprintf("%s %s  %s\n", labelStyle.Render(f.Ticker+" "+f.TradeDate), f.Name, pendingStyle.Render(f.Path)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderReflections(reflections []service.Reflection) string {
	if len(reflections) == 0 {
		return pendingStyle.Render("Nothing to reflect on")
	}
	parts := make([]string, 0, len(reflections))
	for _, r := range reflections {
		parts = append(parts, renderSection("Lesson for "+r.Role, truncateString(r.Reflection, 1200)))
	}
	return strings.Join(parts, "\n")
}

func renderConfig(path string, cfg *config.Config) string {
	var sb strings.Builder
	row := func(label string, value any) {
		sb.WriteString(labelStyle.Render(label))
		sb.WriteString(fmt.Sprint(value))
		sb.WriteString("\n")
	}
	configured := func(v string) string {
		if v == "" {
			return errorStyle.Render("not configured")
		}
		return completedStyle.Render("configured")
	}

	sb.WriteString(titleStyle.Render("Current configuration"))
	sb.WriteString("\n")
	row("Config File", path)
	row("Results Directory", cfg.ResultsDir)
	row("Cache Directory", cfg.DataCacheDir)
	row("Database", cfg.DBPath)
	row("LLM Provider", cfg.LLMProvider)
	row("Deep Think Model", cfg.DeepThinkLLM)
	row("Quick Think Model", cfg.QuickThinkLLM)
	row("Backend URL", cfg.BackendURL)
	row("Embedding Model", cfg.EmbeddingModel)
	row("Max Debate Rounds", cfg.MaxDebateRounds)
	row("Max Risk Rounds", cfg.MaxRiskDiscussRounds)
	row("Max Recursion Limit", cfg.MaxRecurLimit)
	row("Online Tools", cfg.OnlineTools)
	row("Market Data", cfg.MarketDataProvider)
	row("Cache", fmt.Sprintf("%t (%s)", cfg.CacheEnabled, cfg.CacheBackend))
	row("HTTP Address", cfg.HTTPAddr)
	row("Debug Mode", cfg.Debug)
	row("Eino Debug", cfg.EinoDebugEnabled)
	row("LLM API Key", configured(cfg.LLMAPIKey()))
	row("Finnhub API Key", configured(cfg.FinnhubAPIKey))
	row("Tavily API Key", configured(cfg.TavilyAPIKey))
	return strings.TrimRight(sb.String(), "\n")
}

// truncateString truncates a string to maxLen runes, marking the cut.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
