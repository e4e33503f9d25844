package agents

import (
	"fmt"
	"slices"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/dataflows"
	"github.com/dyike/CortexDesk/internal/reasoner"
	"github.com/dyike/CortexDesk/models"
)

// Team is the full cast of one pipeline, in execution order.
type Team struct {
	Analysts         []Stage
	ResearchDebaters []Stage
	ResearchManager  Stage
	Trader           Stage
	RiskDebaters     []Stage
	RiskManager      Stage
	PortfolioManager Stage
}

type analystDef struct {
	name     string
	speaker  string
	field    string
	category dataflows.Category
	prompt   string
}

var analystDefs = map[string]analystDef{
	consts.AnalystMarket: {
		consts.MarketAnalyst, consts.Agent_MarketAnalyst, models.FieldMarketReport,
		dataflows.CategoryMarket, "analysts/market_analyst",
	},
	consts.AnalystSocial: {
		consts.SocialMediaAnalyst, consts.Agent_SocialAnalyst, models.FieldSocialReport,
		dataflows.CategorySentiment, "analysts/social_analyst",
	},
	consts.AnalystNews: {
		consts.NewsAnalyst, consts.Agent_NewsAnalyst, models.FieldNewsReport,
		dataflows.CategoryNews, "analysts/news_analyst",
	},
	consts.AnalystFundamentals: {
		consts.FundamentalsAnalyst, consts.Agent_FundamentalsAnalyst, models.FieldFundamentalsReport,
		dataflows.CategoryFundamentals, "analysts/fundamentals_analyst",
	},
}

// AnalystField returns the state field written by the analyst with the given config key.
func AnalystField(key string) (string, bool) {
	def, ok := analystDefs[key]
	return def.field, ok
}

// Validate reports config.ErrInvalid when a stage is missing or the analysts differ from
// the ones cfg selects, in canonical order.
func (t *Team) Validate(cfg *config.Config) error {
	if t == nil {
		return fmt.Errorf("%w: no stages configured", config.ErrInvalid)
	}
	var want []string
	for _, key := range consts.AnalystKeys {
		if slices.Contains(cfg.SelectedAnalysts, key) {
			want = append(want, analystDefs[key].name)
		}
	}
	got := make([]string, 0, len(t.Analysts))
	for _, st := range t.Analysts {
		if st == nil {
			return fmt.Errorf("%w: nil analyst stage", config.ErrInvalid)
		}
		got = append(got, st.Name())
	}
	if !slices.Equal(want, got) {
		return fmt.Errorf("%w: team analysts %v do not match selected %v", config.ErrInvalid, got, want)
	}

	if len(t.ResearchDebaters) == 0 || len(t.RiskDebaters) == 0 {
		return fmt.Errorf("%w: both debates need at least one debater", config.ErrInvalid)
	}
	for _, st := range append(slices.Clone(t.ResearchDebaters), t.RiskDebaters...) {
		if st == nil {
			return fmt.Errorf("%w: nil debater stage", config.ErrInvalid)
		}
	}
	for _, single := range []struct {
		role  string
		stage Stage
	}{
		{"research manager", t.ResearchManager},
		{"trader", t.Trader},
		{"risk manager", t.RiskManager},
		{"portfolio manager", t.PortfolioManager},
	} {
		if single.stage == nil {
			return fmt.Errorf("%w: no %s stage", config.ErrInvalid, single.role)
		}
	}
	return nil
}

// NewTeam builds the stages for cfg. Managers think with the deep model, everyone else with the quick one.
// Analysts follow the canonical pipeline order regardless of how they were listed in the config.
func NewTeam(cfg *config.Config, pair *reasoner.Pair, provider dataflows.Provider) (*Team, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	quick, deep := pair.Quick, pair.Deep

	team := &Team{}
	for _, key := range consts.AnalystKeys {
		if !slices.Contains(cfg.SelectedAnalysts, key) {
			continue
		}
		def := analystDefs[key]
		st, err := newPromptStage(def.name, def.speaker, KindAnalyst, def.field, def.prompt, quick)
		if err != nil {
			return nil, err
		}
		st.provider = provider
		st.category = def.category
		team.Analysts = append(team.Analysts, st)
	}

	type def struct {
		dst     *Stage
		name    string
		speaker string
		kind    Kind
		field   string
		prompt  string
		r       reasoner.Reasoner
	}
	var bull, bear, aggressive, conservative, neutral Stage
	defs := []def{
		{&bull, consts.BullResearcher, consts.Agent_BullResearcher, KindDebater, "", "researchers/bull_researcher", quick},
		{&bear, consts.BearResearcher, consts.Agent_BearResearcher, KindDebater, "", "researchers/bear_researcher", quick},
		{&team.ResearchManager, consts.ResearchManager, consts.Agent_ResearchManager, KindArbiter, models.FieldResearchDecision, "managers/research_manager", deep},
		{&team.Trader, consts.Trader, consts.Agent_Trader, KindTrader, models.FieldTraderPlan, "trader/trader", quick},
		{&aggressive, consts.AggressiveAnalyst, consts.Agent_AggressiveAnalyst, KindRiskEvaluator, "", "risk_mgmt/aggressive_analyst", quick},
		{&conservative, consts.ConservativeAnalyst, consts.Agent_ConservativeAnalyst, KindRiskEvaluator, "", "risk_mgmt/conservative_analyst", quick},
		{&neutral, consts.NeutralAnalyst, consts.Agent_NeutralAnalyst, KindRiskEvaluator, "", "risk_mgmt/neutral_analyst", quick},
		{&team.RiskManager, consts.RiskManager, consts.Agent_RiskManager, KindArbiter, models.FieldRiskDecision, "managers/risk_manager", deep},
		{&team.PortfolioManager, consts.PortfolioManager, consts.Agent_PortfolioManager, KindPortfolioManager, models.FieldFinalDecision, "managers/portfolio_manager", deep},
	}
	for _, d := range defs {
		st, err := newPromptStage(d.name, d.speaker, d.kind, d.field, d.prompt, d.r)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", d.name, err)
		}
		*d.dst = st
	}

	team.ResearchDebaters = []Stage{bull, bear}
	team.RiskDebaters = []Stage{aggressive, conservative, neutral}
	return team, nil
}
