package display

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyike/CortexDesk/internal/graph"
	"github.com/dyike/CortexDesk/internal/utils"
	"github.com/dyike/CortexDesk/models"
)

// ResultsDisplay renders pipeline and portfolio results for the terminal.
type ResultsDisplay struct {
	out io.Writer
	// Full disables report truncation.
	Full bool
}

// NewResultsDisplay creates a display writing to out, stdout when nil.
func NewResultsDisplay(out io.Writer) *ResultsDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &ResultsDisplay{out: out}
}

// DisplayAnalysisResults prints the full report of one run.
func (d *ResultsDisplay) DisplayAnalysisResults(res *graph.RunResult) {
	fmt.Fprintln(d.out, d.RenderRun(res))
}

// DisplayPortfolio prints the per-ticker table and the recommendation distribution.
func (d *ResultsDisplay) DisplayPortfolio(res *models.PortfolioResult) {
	fmt.Fprintln(d.out, d.RenderPortfolio(res))
}

// RenderRun builds the run report without printing it.
func (d *ResultsDisplay) RenderRun(res *graph.RunResult) string {
	if res == nil {
		return Error("no result")
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("ANALYSIS RESULTS FOR %s\nDate: %s", res.Ticker, res.Date)))
	sb.WriteString("\n")
	d.showExecutiveSummary(&sb, res)
	if res.Failure != nil && res.Failure.Kind == models.ConfigInvalid {
		return sb.String()
	}
	d.showMarketAnalysis(&sb, res.State)
	d.showDebate(&sb, "RESEARCH DEBATE", res.State.ResearchDebate, res.State.ResearchDecision)
	d.showSection(&sb, "TRADING PLAN", res.State.TraderPlan)
	d.showDebate(&sb, "RISK ASSESSMENT", res.State.RiskDebate, res.State.RiskDecision)
	if res.Done() {
		d.showSection(&sb, "FINAL DECISION", res.FinalDecision)
	}
	sb.WriteString(Muted(fmt.Sprintf("run %s, %d stage invocations, %s", res.RunID, res.Invocations, res.Duration.Round(time.Millisecond))))
	return sb.String()
}

func (d *ResultsDisplay) showExecutiveSummary(sb *strings.Builder, res *graph.RunResult) {
	sb.WriteString(titleStyle.Render("EXECUTIVE SUMMARY"))
	sb.WriteString("\n")
	if !res.Done() {
		line := "Status: failed"
		if res.Failure != nil {
			line = fmt.Sprintf("Status: failed in phase %s (%s)", res.FailedPhase, res.Failure.Kind)
		}
		sb.WriteString(Error(line))
		sb.WriteString("\n")
		if res.Failure != nil && res.Failure.Cause != nil {
			sb.WriteString(Muted(res.Failure.Cause.Error()))
			sb.WriteString("\n")
		}
		return
	}
	action := models.Hold
	confidence := 0.0
	if res.Decision != nil {
		action = res.Decision.Action
		confidence = res.Decision.Confidence
	}
	fmt.Fprintf(sb, "%s %s\n", labelStyle.Render("Recommendation:"), RenderRecommendation(action))
	fmt.Fprintf(sb, "%s %.0f%%\n", labelStyle.Render("Confidence:"), confidence*100)
	sb.WriteString(Success("Status: complete"))
	sb.WriteString("\n")
}

func (d *ResultsDisplay) showMarketAnalysis(sb *strings.Builder, snap models.Snapshot) {
	d.showSection(sb, "MARKET REPORT", snap.MarketReport)
	d.showSection(sb, "SOCIAL SENTIMENT", snap.SocialReport)
	d.showSection(sb, "NEWS ANALYSIS", snap.NewsReport)
	d.showSection(sb, "FUNDAMENTALS", snap.FundamentalsReport)
}

func (d *ResultsDisplay) showDebate(sb *strings.Builder, title string, tr *models.DebateTranscript, verdict string) {
	if tr == nil && verdict == "" {
		return
	}
	var body strings.Builder
	if tr != nil {
		for _, turn := range tr.Turns {
			if turn.Skipped {
				fmt.Fprintf(&body, "%s %s\n", labelStyle.Render(fmt.Sprintf("[%d] %s:", turn.Round, turn.Speaker)), Warning("skipped ("+string(turn.Failure)+")"))
				continue
			}
			fmt.Fprintf(&body, "%s %s\n", labelStyle.Render(fmt.Sprintf("[%d] %s:", turn.Round, turn.Speaker)), d.clip(turn.Statement))
		}
		rounds := fmt.Sprintf("Rounds: %d", tr.Rounds)
		if tr.EarlyExit {
			rounds += " (ended early)"
		}
		body.WriteString(Muted(rounds))
		body.WriteString("\n")
	}
	if verdict != "" {
		fmt.Fprintf(&body, "%s %s", labelStyle.Render("Verdict:"), d.clip(verdict))
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(sectionStyle.Render(strings.TrimRight(body.String(), "\n")))
	sb.WriteString("\n")
}

func (d *ResultsDisplay) showSection(sb *strings.Builder, title, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(sectionStyle.Render(d.clip(content)))
	sb.WriteString("\n")
}

const clipRunes = 1200

func (d *ResultsDisplay) clip(s string) string {
	s = strings.TrimSpace(s)
	if d.Full {
		return s
	}
	r := []rune(s)
	if len(r) <= clipRunes {
		return s
	}
	return string(r[:clipRunes]) + " …"
}

// RenderPortfolio builds the portfolio table without printing it.
func (d *ResultsDisplay) RenderPortfolio(res *models.PortfolioResult) string {
	if res == nil {
		return Error("no result")
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("PORTFOLIO %s\n%d tickers, %d succeeded, %d failed",
		res.Date, res.Summary.Total, res.Summary.Succeeded, res.Summary.Failed)))
	sb.WriteString("\n")

	var rows strings.Builder
	fmt.Fprintf(&rows, "%-8s %-8s %s\n", "TICKER", "ACTION", "DETAIL")
	for _, o := range res.Outcomes {
		if o.Done() {
			action := models.Hold
			if o.Decision != nil {
				action = o.Decision.Action
			}
			fmt.Fprintf(&rows, "%-8s %-8s %s\n", o.Ticker, RenderRecommendation(action), Muted(o.RunID))
			continue
		}
		kind := "unknown"
		if o.Failure != nil {
			kind = string(o.Failure.Kind)
		}
		fmt.Fprintf(&rows, "%-8s %-8s %s\n", o.Ticker, Error("FAILED"), fmt.Sprintf("%s in %s", kind, o.FailedPhase))
	}
	sb.WriteString(sectionStyle.Render(strings.TrimRight(rows.String(), "\n")))
	sb.WriteString("\n")

	parts := make([]string, 0, len(models.Recommendations))
	for _, rec := range models.Recommendations {
		parts = append(parts, fmt.Sprintf("%s: %d", RenderRecommendation(rec), res.Summary.Distribution[rec]))
	}
	sb.WriteString(labelStyle.Render("Distribution: "))
	sb.WriteString(strings.Join(parts, "  "))
	return sb.String()
}

// RenderRecommendation colours an action.
func RenderRecommendation(r models.Recommendation) string {
	switch r {
	case models.Buy:
		return completedStyle.Render(string(r))
	case models.Sell:
		return errorStyle.Render(string(r))
	default:
		return warnStyle.Render(string(r))
	}
}

// SaveResultsToFile writes the run result as indented JSON.
func SaveResultsToFile(res *graph.RunResult, path string) error {
	_, err := utils.WriteJSON(filepath.Dir(path), filepath.Base(path), res)
	return err
}
