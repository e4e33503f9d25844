package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/dataflows"
	"github.com/dyike/CortexDesk/internal/reasoner"
	"github.com/dyike/CortexDesk/internal/utils"
	"github.com/dyike/CortexDesk/models"
)

// promptStage is the one implementation behind every stage kind: load the role template,
// fill it from the state, ask the reasoner, write the declared field.
// Template and reasoner run as a compiled eino chain so the devops server can list each role.
type promptStage struct {
	name    string
	speaker string
	kind    Kind
	field   string // empty for debaters, whose statement goes to the transcript
	chain   compose.Runnable[map[string]any, *reasoner.Response]

	// analysts only
	provider dataflows.Provider
	category dataflows.Category
}

func newPromptStage(name, speaker string, kind Kind, field, promptPath string, r reasoner.Reasoner) (*promptStage, error) {
	ptl, err := utils.LoadPrompt(promptPath)
	if err != nil {
		return nil, err
	}
	chain, err := compileStageChain(name, kind, ptl, r)
	if err != nil {
		return nil, err
	}
	return &promptStage{
		name:    name,
		speaker: speaker,
		kind:    kind,
		field:   field,
		chain:   chain,
	}, nil
}

type timeoutKey struct{}

// compileStageChain builds template -> reasoner. The reasoner node reads its deadline from the context.
func compileStageChain(name string, kind Kind, systemPrompt string, r reasoner.Reasoner) (compose.Runnable[map[string]any, *reasoner.Response], error) {
	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userInstruction(kind)),
	)
	invoke := compose.InvokableLambda(func(ctx context.Context, msgs []*schema.Message) (*reasoner.Response, error) {
		timeout, _ := ctx.Value(timeoutKey{}).(time.Duration)
		return r.Invoke(ctx, reasoner.Request{Role: name, Messages: msgs, Timeout: timeout})
	})

	chain := compose.NewChain[map[string]any, *reasoner.Response]().
		AppendChatTemplate(template, compose.WithNodeName("template")).
		AppendLambda(invoke, compose.WithNodeName("reasoner"))
	runnable, err := chain.Compile(context.Background(), compose.WithGraphName(name))
	if err != nil {
		return nil, fmt.Errorf("compile %s chain: %w", name, err)
	}
	return runnable, nil
}

func userInstruction(kind Kind) string {
	switch kind {
	case KindAnalyst:
		return "Write your report on {ticker} for {date}."
	case KindDebater, KindRiskEvaluator:
		return "Give your argument for round {round}."
	case KindArbiter:
		return "Deliver your verdict on the debate about {ticker}."
	case KindTrader:
		return "Give your trading plan for {ticker} on {date}."
	default:
		return "Make the final decision on {ticker} for {date}."
	}
}

func (s *promptStage) Name() string    { return s.name }
func (s *promptStage) Speaker() string { return s.speaker }
func (s *promptStage) Kind() Kind      { return s.kind }

func (s *promptStage) Run(ctx context.Context, in Input) StageResult {
	start := time.Now()
	res := StageResult{Stage: s.name, Speaker: s.speaker, Kind: s.kind}
	fail := func(kind models.FailureKind, cause error) StageResult {
		res.Failure = models.NewStageFailure(kind, s.name, cause)
		res.Duration = time.Since(start)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(models.Cancelled, err)
	}

	vars := promptVars(in)
	if s.kind == KindAnalyst {
		ds, err := s.provider.Fetch(ctx, in.State.Ticker(), in.State.Date(), s.category)
		if err != nil {
			return fail(classifyProviderError(ctx, err), fmt.Errorf("fetch %s data: %w", s.category, err))
		}
		vars["data"] = ds.Render()
	}

	var timeout time.Duration
	if in.Config != nil {
		timeout = in.Config.ReasonerTimeout()
	}
	resp, err := s.chain.Invoke(context.WithValue(ctx, timeoutKey{}, timeout), vars)
	if err != nil {
		return fail(classifyReasonerError(ctx, err), err)
	}
	if resp == nil {
		return fail(models.MalformedResponse, fmt.Errorf("nil response"))
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" && len(resp.Signals) > 0 {
		raw, _ := json.Marshal(resp.Signals)
		text = string(raw)
	}
	if text == "" {
		return fail(models.MalformedResponse, fmt.Errorf("empty response"))
	}

	if s.field != "" {
		if err := in.State.Set(s.field, text); err != nil {
			return fail(models.MalformedResponse, err)
		}
	}

	res.Output = text
	res.Signals = resp.Signals
	res.Duration = time.Since(start)
	return res
}

// promptVars exposes the whole state to every template; each template picks what it needs.
func promptVars(in Input) map[string]any {
	st := in.State
	vars := map[string]any{
		"ticker":              st.Ticker(),
		"company":             dataflows.CompanyName(st.Ticker()),
		"date":                st.Date(),
		"market_report":       orNone(st.Get(models.FieldMarketReport)),
		"social_report":       orNone(st.Get(models.FieldSocialReport)),
		"news_report":         orNone(st.Get(models.FieldNewsReport)),
		"fundamentals_report": orNone(st.Get(models.FieldFundamentalsReport)),
		"research_decision":   orNone(st.Get(models.FieldResearchDecision)),
		"trader_plan":         orNone(st.Get(models.FieldTraderPlan)),
		"risk_decision":       orNone(st.Get(models.FieldRiskDecision)),
		"round":               strconv.Itoa(in.Round),
		"max_rounds":          strconv.Itoa(in.MaxRounds),
		"data":                "",
	}

	t := in.Transcript
	if t == nil {
		t = &models.DebateTranscript{}
	}
	history := t.History()
	if history == "" {
		history = consts.NoDebateInput
	}
	vars["history"] = history
	vars["bull_last"] = orNone(t.LatestOf(consts.Agent_BullResearcher))
	vars["bear_last"] = orNone(t.LatestOf(consts.Agent_BearResearcher))
	vars["aggressive_last"] = orNone(t.LatestOf(consts.Agent_AggressiveAnalyst))
	vars["conservative_last"] = orNone(t.LatestOf(consts.Agent_ConservativeAnalyst))
	vars["neutral_last"] = orNone(t.LatestOf(consts.Agent_NeutralAnalyst))
	return vars
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
