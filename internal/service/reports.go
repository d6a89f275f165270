package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyike/agenttrader/models"
	"github.com/dyike/agenttrader/pkg/utils"
)

// ReportFile is one markdown report on disk.
type ReportFile struct {
	Ticker    string `json:"ticker"`
	TradeDate string `json:"trade_date"`
	Name      string `json:"name"`
	Path      string `json:"path"`
}

// WriteReports writes the non-empty reports of state to
// <resultsDir>/<ticker>/<trade date>/.
func WriteReports(resultsDir string, state *models.TradingState) error {
	if state == nil {
		return nil
	}
	dir := filepath.Join(resultsDir, state.CompanyOfInterest, state.TradeDate)
	reports := []struct {
		name    string
		content string
	}{
		{"market_report.md", state.MarketReport},
		{"sentiment_report.md", state.SentimentReport},
		{"news_report.md", state.NewsReport},
		{"fundamentals_report.md", state.FundamentalsReport},
		{"investment_plan.md", state.InvestmentPlan},
		{"trader_investment_plan.md", state.TraderInvestmentPlan},
		{"final_trade_decision.md", state.FinalTradeDecision},
	}
	var errs []error
	for _, r := range reports {
		if strings.TrimSpace(r.content) == "" {
			continue
		}
		if err := utils.WriteMarkdown(dir, r.name, r.content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListReports lists the markdown reports under resultsDir, optionally for a
// single ticker, sorted by path.
func ListReports(resultsDir, ticker string) ([]ReportFile, error) {
	root, err := filepath.Abs(strings.TrimSpace(resultsDir))
	if err != nil {
		return nil, fmt.Errorf("resolve results dir: %w", err)
	}
	if ticker != "" {
		root = filepath.Join(root, strings.ToUpper(ticker))
	}

	var items []ReportFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		dateDir := filepath.Dir(path)
		items = append(items, ReportFile{
			Ticker:    filepath.Base(filepath.Dir(dateDir)),
			TradeDate: filepath.Base(dateDir),
			Name:      d.Name(),
			Path:      filepath.ToSlash(path),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("walk results dir: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Path < items[j].Path
	})
	return items, nil
}

// ReadReport returns the content of a report, refusing paths outside resultsDir.
func ReadReport(resultsDir, path string) (string, error) {
	root, err := filepath.Abs(strings.TrimSpace(resultsDir))
	if err != nil {
		return "", fmt.Errorf("resolve results dir: %w", err)
	}
	target, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", errors.New("invalid path")
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path is outside results_dir")
	}
	if !strings.EqualFold(filepath.Ext(target), ".md") {
		return "", errors.New("path is not a markdown file")
	}
	content, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	return string(content), nil
}
