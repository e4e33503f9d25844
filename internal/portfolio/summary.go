package portfolio

import (
	"fmt"
	"strings"
	"time"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/utils"
	"github.com/dyike/CortexDesk/models"
)

// RenderSummary formats a portfolio result as markdown, naming the model bindings that produced it.
func RenderSummary(res *models.PortfolioResult, cfg *config.Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Portfolio analysis %s\n\n", res.Date)
	fmt.Fprintf(&sb, "- Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "- Provider: %s\n", cfg.LLMProvider)
	fmt.Fprintf(&sb, "- Deep model: %s\n", cfg.DeepThinkLLM)
	fmt.Fprintf(&sb, "- Quick model: %s\n", cfg.QuickThinkLLM)
	fmt.Fprintf(&sb, "- Tickers: %d (succeeded %d, failed %d)\n\n", res.Summary.Total, res.Summary.Succeeded, res.Summary.Failed)

	sb.WriteString("## Recommendations\n\n| Action | Count |\n|---|---|\n")
	for _, action := range models.Recommendations {
		fmt.Fprintf(&sb, "| %s | %d |\n", action, res.Summary.Distribution[action])
	}

	sb.WriteString("\n## Tickers\n\n| Ticker | Status | Action | Confidence | Note |\n|---|---|---|---|---|\n")
	for _, o := range res.Outcomes {
		if o.Done() {
			action, confidence := models.Hold, 0.0
			if o.Decision != nil {
				action, confidence = o.Decision.Action, o.Decision.Confidence
			}
			fmt.Fprintf(&sb, "| %s | done | %s | %.2f | |\n", o.Ticker, action, confidence)
			continue
		}
		kind := "unknown"
		if o.Failure != nil {
			kind = string(o.Failure.Kind)
		}
		fmt.Fprintf(&sb, "| %s | failed in %s | | | %s |\n", o.Ticker, o.FailedPhase, kind)
	}
	return sb.String()
}

// WriteSummary stores the markdown summary under the results directory and returns its path.
func WriteSummary(res *models.PortfolioResult, cfg *config.Config) (string, error) {
	return utils.WriteMarkdown(cfg.ResultsDir, fmt.Sprintf("portfolio_%s.md", res.Date), RenderSummary(res, cfg))
}
