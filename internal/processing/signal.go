// Package processing turns a free-text trade decision into a structured signal.
package processing

import (
	"regexp"
	"strings"
)

const (
	Buy  = "BUY"
	Sell = "SELL"
	Hold = "HOLD"
)

// Signal is the action extracted from a decision text. Source is "proposal"
// when the text carried an explicit final proposal line and "keywords" when
// the action was inferred from wording.
type Signal struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

var (
	proposalPattern = regexp.MustCompile(`(?i)FINAL\s+TRANSACTION\s+PROPOSAL\s*:\s*\**\s*(BUY|SELL|HOLD)\b`)
	leadingPattern  = regexp.MustCompile(`(?i)^\W*(BUY|SELL|HOLD)\b`)

	buyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(buy|purchase|long|bullish|accumulate|overweight)\b`),
		regexp.MustCompile(`(?i)\b(undervalued|oversold|upside)\b`),
	}
	sellPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(sell|short|bearish|divest|exit|underweight)\b`),
		regexp.MustCompile(`(?i)\b(overvalued|overbought|downside)\b`),
	}
	holdPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(hold|maintain|neutral|wait|sideways)\b`),
	}
)

// Extract reads the action out of a decision. An explicit proposal line wins
// (the last one, as the judge may quote earlier proposals), then a leading
// action word, then keyword counts. Empty text yields HOLD with zero confidence.
func Extract(text string) Signal {
	text = strings.TrimSpace(text)
	if text == "" {
		return Signal{Action: Hold, Source: "keywords"}
	}

	if m := proposalPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		action := strings.ToUpper(m[len(m)-1][1])
		return Signal{Action: action, Confidence: 1, Source: "proposal", Reasoning: reasoning(text, action)}
	}
	if m := leadingPattern.FindStringSubmatch(text); m != nil {
		action := strings.ToUpper(m[1])
		return Signal{Action: action, Confidence: 0.9, Source: "proposal", Reasoning: reasoning(text, action)}
	}

	scores := map[string]int{
		Buy:  count(buyPatterns, text),
		Sell: count(sellPatterns, text),
		Hold: count(holdPatterns, text),
	}
	action := Hold
	if scores[Buy] > scores[Sell] && scores[Buy] > scores[Hold] {
		action = Buy
	} else if scores[Sell] > scores[Buy] && scores[Sell] > scores[Hold] {
		action = Sell
	}

	total := scores[Buy] + scores[Sell] + scores[Hold]
	confidence := 0.1
	if total > 0 {
		confidence = float64(scores[action]) / float64(total)
	}
	return Signal{Action: action, Confidence: confidence, Source: "keywords", Reasoning: reasoning(text, action)}
}

func count(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllString(text, -1))
	}
	return n
}

// reasoning picks up to three sentences that mention the action.
func reasoning(text, action string) string {
	word := strings.ToLower(action)
	var picked []string
	for _, sentence := range strings.Split(text, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < 10 || !strings.Contains(strings.ToLower(sentence), word) {
			continue
		}
		picked = append(picked, sentence)
		if len(picked) == 3 {
			break
		}
	}
	if len(picked) == 0 {
		return ""
	}
	return strings.Join(picked, ". ") + "."
}
