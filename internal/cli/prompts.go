package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/agenttrader/internal/dataflows"
)

// ResearchDepth selects how many debate rounds both committees run.
type ResearchDepth string

const (
	ShallowResearch ResearchDepth = "shallow" // 1 round
	MediumResearch  ResearchDepth = "medium"  // 3 rounds
	DeepResearch    ResearchDepth = "deep"    // 5 rounds
)

func (r ResearchDepth) Rounds() int {
	switch r {
	case MediumResearch:
		return 3
	case DeepResearch:
		return 5
	default:
		return 1
	}
}

// ParseResearchDepth maps a depth name to its round count.
func ParseResearchDepth(s string) (int, error) {
	switch d := ResearchDepth(strings.ToLower(strings.TrimSpace(s))); d {
	case ShallowResearch, MediumResearch, DeepResearch:
		return d.Rounds(), nil
	default:
		return 0, fmt.Errorf("unknown research depth %q (use shallow, medium or deep)", s)
	}
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]+$`)

func validateTicker(val interface{}) error {
	str := strings.TrimSpace(strings.ToUpper(val.(string)))
	if len(str) == 0 {
		return fmt.Errorf("ticker symbol cannot be empty")
	}
	if len(str) > 10 {
		return fmt.Errorf("ticker symbol too long (max 10 characters)")
	}
	if !tickerPattern.MatchString(str) {
		return fmt.Errorf("invalid ticker format (use letters, numbers, dots, and hyphens only)")
	}
	return nil
}

func validateDate(val interface{}) error {
	str := strings.TrimSpace(val.(string))
	if str == "" {
		return nil
	}
	parsed, err := time.Parse(dataflows.DateLayout, str)
	if err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	if parsed.After(time.Now()) {
		return fmt.Errorf("analysis date cannot be in the future")
	}
	return nil
}

// PromptForTicker prompts the user to enter a stock ticker symbol
func PromptForTicker() (string, error) {
	var ticker string
	prompt := &survey.Input{
		Message: "Enter the stock ticker symbol (e.g., AAPL, MSFT, NVDA):",
		Help:    "Please enter a valid stock ticker symbol for analysis",
	}
	if err := survey.AskOne(prompt, &ticker, survey.WithValidator(validateTicker)); err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToUpper(ticker)), nil
}

// PromptForAnalysisDate prompts for the trade date, offering def as the default.
func PromptForAnalysisDate(def string) (string, error) {
	var date string
	prompt := &survey.Input{
		Message: "Enter the trade date (YYYY-MM-DD):",
		Help:    "Format: YYYY-MM-DD (e.g., 2024-05-01).",
		Default: def,
	}
	if err := survey.AskOne(prompt, &date, survey.WithValidator(validateDate)); err != nil {
		return "", err
	}
	return strings.TrimSpace(date), nil
}

// PromptForResearchDepth prompts the user to select research depth
func PromptForResearchDepth() (ResearchDepth, error) {
	var selected string

	options := []string{
		fmt.Sprintf("Shallow (%d round) - Quick analysis", ShallowResearch.Rounds()),
		fmt.Sprintf("Medium (%d rounds) - Balanced analysis", MediumResearch.Rounds()),
		fmt.Sprintf("Deep (%d rounds) - Comprehensive analysis", DeepResearch.Rounds()),
	}

	prompt := &survey.Select{
		Message: "Select research depth:",
		Options: options,
		Help:    "More debate rounds give more thorough results but take longer.",
		Default: options[0],
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}

	switch {
	case strings.HasPrefix(selected, "Medium"):
		return MediumResearch, nil
	case strings.HasPrefix(selected, "Deep"):
		return DeepResearch, nil
	default:
		return ShallowResearch, nil
	}
}
