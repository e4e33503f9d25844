package consts

// Stage identifiers, used as node names in logs, the run recorder and the state log.
const (
	// 分析师节点
	MarketAnalyst       = "market_analyst"
	SocialMediaAnalyst  = "social_media_analyst"
	NewsAnalyst         = "news_analyst"
	FundamentalsAnalyst = "fundamentals_analyst"

	// 研究员节点
	BullResearcher  = "bull_researcher"
	BearResearcher  = "bear_researcher"
	ResearchManager = "research_manager"

	// 交易员节点
	Trader = "trader"

	// 风险分析节点
	AggressiveAnalyst   = "aggressive_analyst"
	ConservativeAnalyst = "conservative_analyst"
	NeutralAnalyst      = "neutral_analyst"
	RiskManager         = "risk_manager"

	// 组合经理
	PortfolioManager = "portfolio_manager"
)

// Analyst keys accepted in the selected_analysts configuration.
const (
	AnalystMarket       = "market"
	AnalystSocial       = "social"
	AnalystNews         = "news"
	AnalystFundamentals = "fundamentals"
)

// AnalystKeys lists the analyst keys in pipeline order.
var AnalystKeys = []string{AnalystMarket, AnalystSocial, AnalystNews, AnalystFundamentals}
