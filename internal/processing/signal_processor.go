package processing

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dyike/CortexDesk/models"
)

// SignalProcessor reduces the portfolio manager's prose to a BUY/HOLD/SELL decision.
type SignalProcessor struct {
	proposal     *regexp.Regexp
	buyPatterns  []*regexp.Regexp
	sellPatterns []*regexp.Regexp
	holdPatterns []*regexp.Regexp
	prices       map[string]*regexp.Regexp
}

func NewSignalProcessor() *SignalProcessor {
	return &SignalProcessor{
		proposal: regexp.MustCompile(`(?i)(?:FINAL TRANSACTION PROPOSAL|ИТОГОВОЕ (?:ТОРГОВОЕ )?ПРЕДЛОЖЕНИЕ)\s*:\s*\**\s*(BUY|HOLD|SELL|ПОКУПАТЬ|ДЕРЖАТЬ|ПРОДАВАТЬ)`),
		buyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(buy|purchase|long|bullish|accumulate)\b`),
			regexp.MustCompile(`(?i)\b(strong buy|recommended buy|buy recommendation|undervalued)\b`),
			regexp.MustCompile(`(?i)(покупать|покупка|купить)`),
		},
		sellPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(sell|short|bearish|divest|exit)\b`),
			regexp.MustCompile(`(?i)\b(strong sell|sell recommendation|overvalued)\b`),
			regexp.MustCompile(`(?i)(продавать|продажа|продать)`),
		},
		holdPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(hold|maintain|neutral|wait|sideways)\b`),
			regexp.MustCompile(`(?i)\b(no action|stay put|keep position)\b`),
			regexp.MustCompile(`(?i)(держать|удерживать)`),
		},
		prices: map[string]*regexp.Regexp{
			"entry":  regexp.MustCompile(`(?i)(?:entry|вход)[^0-9\n]{0,30}(\d+(?:[.,]\d+)?)`),
			"stop":   regexp.MustCompile(`(?i)(?:stop[- ]?loss|стоп[- ]?лосс)[^0-9\n]{0,30}(\d+(?:[.,]\d+)?)`),
			"target": regexp.MustCompile(`(?i)(?:target|take[- ]?profit|цель)[^0-9\n]{0,30}(\d+(?:[.,]\d+)?)`),
		},
	}
}

// Process extracts the decision. A structured "decision" signal from the reasoner wins,
// then an explicit proposal marker, then keyword scoring.
func (sp *SignalProcessor) Process(ticker, date, finalDecision string, signals map[string]any) *models.TradingDecision {
	decision := &models.TradingDecision{
		Symbol:    ticker,
		Date:      date,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if action, confidence, ok := fromSignals(signals); ok {
		decision.Action = action
		decision.Confidence = confidence
	} else if m := sp.proposal.FindStringSubmatch(finalDecision); len(m) > 1 {
		decision.Action = models.ParseRecommendation(m[1])
		decision.Confidence = 0.9
	} else {
		decision.Action = sp.extractAction(finalDecision)
		decision.Confidence = sp.calculateConfidence(finalDecision, decision.Action)
	}

	decision.Reasoning = sp.extractReasoning(finalDecision, decision.Action)
	decision.EntryPrice = sp.extractPrice(finalDecision, "entry")
	decision.StopLoss = sp.extractPrice(finalDecision, "stop")
	decision.TakeProfit = sp.extractPrice(finalDecision, "target")
	return decision
}

func fromSignals(signals map[string]any) (models.Recommendation, float64, bool) {
	raw, ok := signals["decision"].(map[string]any)
	if !ok {
		return "", 0, false
	}
	action, ok := raw["action"].(string)
	if !ok || strings.TrimSpace(action) == "" {
		return "", 0, false
	}
	confidence := 0.8
	if c, ok := raw["confidence"].(float64); ok && c >= 0 && c <= 1 {
		confidence = c
	}
	return models.ParseRecommendation(action), confidence, true
}

func (sp *SignalProcessor) score(text string, patterns []*regexp.Regexp) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllString(text, -1))
	}
	return n
}

func (sp *SignalProcessor) extractAction(text string) models.Recommendation {
	buy := sp.score(text, sp.buyPatterns)
	sell := sp.score(text, sp.sellPatterns)
	hold := sp.score(text, sp.holdPatterns)

	switch {
	case buy > sell && buy > hold:
		return models.Buy
	case sell > buy && sell > hold:
		return models.Sell
	}
	return models.Hold
}

func (sp *SignalProcessor) calculateConfidence(text string, action models.Recommendation) float64 {
	totalWords := len(strings.Fields(text))
	if totalWords == 0 {
		return 0.5
	}

	var patterns []*regexp.Regexp
	switch action {
	case models.Buy:
		patterns = sp.buyPatterns
	case models.Sell:
		patterns = sp.sellPatterns
	default:
		patterns = sp.holdPatterns
	}

	confidence := float64(sp.score(text, patterns)) / float64(totalWords) * 10
	return min(max(confidence, 0.1), 1.0)
}

var reasoningWords = map[models.Recommendation][]string{
	models.Buy:  {"buy", "bullish", "growth", "opportunity", "undervalued", "покуп", "рост"},
	models.Sell: {"sell", "bearish", "risk", "decline", "overvalued", "прода", "риск", "паден"},
	models.Hold: {"hold", "neutral", "wait", "maintain", "uncertain", "держ", "ожида"},
}

// extractReasoning keeps up to three sentences supporting the action.
func (sp *SignalProcessor) extractReasoning(text string, action models.Recommendation) string {
	var picked []string
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' }) {
		sentence = strings.TrimSpace(sentence)
		if len([]rune(sentence)) < 10 {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, w := range reasoningWords[action] {
			if strings.Contains(lower, w) {
				picked = append(picked, sentence)
				break
			}
		}
		if len(picked) == 3 {
			break
		}
	}
	if len(picked) == 0 {
		return "Decision based on the combined analyst, research and risk assessments."
	}
	return strings.Join(picked, ". ")
}

func (sp *SignalProcessor) extractPrice(text, kind string) float64 {
	m := sp.prices[kind].FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}
