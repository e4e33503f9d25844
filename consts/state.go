package consts

const (
	// Analyst Team
	Agent_MarketAnalyst       = "Market Analyst"
	Agent_SocialAnalyst       = "Social Analyst"
	Agent_NewsAnalyst         = "News Analyst"
	Agent_FundamentalsAnalyst = "Fundamentals Analyst"
	// Research Team
	Agent_BullResearcher  = "Bull Analyst"
	Agent_BearResearcher  = "Bear Analyst"
	Agent_ResearchManager = "Research Manager"
	// Trading Team
	Agent_Trader = "Trader"
	// Risk Management Team
	Agent_AggressiveAnalyst   = "Aggressive Analyst"
	Agent_ConservativeAnalyst = "Conservative Analyst"
	Agent_NeutralAnalyst      = "Neutral Analyst"
	Agent_RiskManager         = "Risk Manager"
	// Portfolio Management Team
	Agent_PortfolioManager = "Portfolio Manager"
)

// NoDebateInput is handed to an arbiter whose debate produced no statements.
const NoDebateInput = "(no debate input available)"

const DateLayout = "2006-01-02"
