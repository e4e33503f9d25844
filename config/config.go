package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dyike/CortexDesk/consts"
)

// ErrInvalid marks a configuration that must be rejected before any stage runs.
var ErrInvalid = errors.New("invalid config")

// Supported LLM providers.
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`

	LLMProvider   string `json:"llm_provider"`
	DeepThinkLLM  string `json:"deep_think_llm"`
	QuickThinkLLM string `json:"quick_think_llm"`
	BackendURL    string `json:"backend_url"`
	MaxTokens     int    `json:"max_tokens"`

	MaxDebateRounds        int      `json:"max_debate_rounds"`
	MaxRiskDiscussRounds   int      `json:"max_risk_rounds"`
	MaxRecurLimit          int      `json:"max_recursion_limit"`
	SelectedAnalysts       []string `json:"selected_analysts"`
	ReasonerTimeoutSeconds int      `json:"reasoner_timeout_seconds"`
	PortfolioWorkers       int      `json:"portfolio_workers"`

	OnlineTools  bool   `json:"online_tools"`
	CacheEnabled bool   `json:"cache_enabled"`
	LogStates    bool   `json:"log_states"`
	Debug        bool   `json:"debug"`
	LogLevel     string `json:"log_level"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	// AI Model API Keys
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	GeminiAPIKey   string `json:"gemini_api_key"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overlays values from a .env file and the process environment on top of c.
func (c *Config) ApplyEnv() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	// Override with environment variables if they exist
	c.loadFromEnv()
}

// DefaultConfigWithRoot returns the built-in defaults rooted at dir, without consulting the environment.
func DefaultConfigWithRoot(dir string) *Config {
	return &Config{
		ProjectDir:   dir,
		ResultsDir:   filepath.Join(dir, "results"),
		DataDir:      filepath.Join(dir, "data"),
		DataCacheDir: filepath.Join(dir, "data", "cache"),
		DBPath:       filepath.Join(dir, "data", "cortexdesk.db"),

		LLMProvider:   ProviderDeepSeek,
		DeepThinkLLM:  "deepseek-reasoner",
		QuickThinkLLM: "deepseek-chat",
		BackendURL:    "https://api.deepseek.com",
		MaxTokens:     8192,

		MaxDebateRounds:        2,
		MaxRiskDiscussRounds:   2,
		MaxRecurLimit:          150,
		SelectedAnalysts:       []string{consts.AnalystMarket, consts.AnalystNews, consts.AnalystFundamentals},
		ReasonerTimeoutSeconds: 120,
		PortfolioWorkers:       3,

		OnlineTools:  true,
		CacheEnabled: true,
		LogStates:    true,
		LogLevel:     "info",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("CORTEXDESK_DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("DEEP_THINK_LLM"); val != "" {
		c.DeepThinkLLM = val
	}
	if val := os.Getenv("QUICK_THINK_LLM"); val != "" {
		c.QuickThinkLLM = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}

	if val := os.Getenv("SELECTED_ANALYSTS"); val != "" {
		c.SelectedAnalysts = SplitList(val)
	}

	setInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.Atoi(val); err == nil {
				*dst = v
			}
		}
	}
	setInt("MAX_TOKENS", &c.MaxTokens)
	setInt("MAX_DEBATE_ROUNDS", &c.MaxDebateRounds)
	setInt("MAX_RISK_ROUNDS", &c.MaxRiskDiscussRounds)
	setInt("MAX_RECURSION_LIMIT", &c.MaxRecurLimit)
	setInt("REASONER_TIMEOUT_SECONDS", &c.ReasonerTimeoutSeconds)
	setInt("PORTFOLIO_WORKERS", &c.PortfolioWorkers)
	setInt("EINO_DEBUG_PORT", &c.EinoDebugPort)

	setBool := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.ParseBool(val); err == nil {
				*dst = v
			}
		}
	}
	setBool("CACHE_ENABLED", &c.CacheEnabled)
	setBool("ONLINE_TOOLS", &c.OnlineTools)
	setBool("LOG_STATES", &c.LogStates)
	setBool("CORTEXDESK_DEBUG", &c.Debug)
	setBool("EINO_DEBUG_ENABLED", &c.EinoDebugEnabled)

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("GEMINI_API_KEY"); val != "" {
		c.GeminiAPIKey = val
	}
}

// Validate reports the first problem that makes the configuration unusable for a run.
// Every returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	if c.MaxDebateRounds <= 0 {
		return fmt.Errorf("%w: max_debate_rounds must be positive, got %d", ErrInvalid, c.MaxDebateRounds)
	}
	if c.MaxRiskDiscussRounds <= 0 {
		return fmt.Errorf("%w: max_risk_rounds must be positive, got %d", ErrInvalid, c.MaxRiskDiscussRounds)
	}
	if c.MaxRecurLimit <= 0 {
		return fmt.Errorf("%w: max_recursion_limit must be positive, got %d", ErrInvalid, c.MaxRecurLimit)
	}
	if c.ReasonerTimeoutSeconds < 0 {
		return fmt.Errorf("%w: reasoner_timeout_seconds must not be negative", ErrInvalid)
	}
	if len(c.SelectedAnalysts) == 0 {
		return fmt.Errorf("%w: at least one analyst must be selected", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.SelectedAnalysts))
	for _, name := range c.SelectedAnalysts {
		if !slices.Contains(consts.AnalystKeys, name) {
			return fmt.Errorf("%w: unknown analyst %q", ErrInvalid, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: analyst %q selected twice", ErrInvalid, name)
		}
		seen[name] = true
	}
	switch c.LLMProvider {
	case ProviderDeepSeek, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("%w: unsupported llm provider %q", ErrInvalid, c.LLMProvider)
	}
	if strings.TrimSpace(c.DeepThinkLLM) == "" || strings.TrimSpace(c.QuickThinkLLM) == "" {
		return fmt.Errorf("%w: deep_think_llm and quick_think_llm are required", ErrInvalid)
	}
	return nil
}

// ReasonerTimeout is the per-call deadline handed to the reasoner; zero disables it.
func (c *Config) ReasonerTimeout() time.Duration {
	return time.Duration(c.ReasonerTimeoutSeconds) * time.Second
}

// APIKey returns the credential for the configured provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case ProviderDeepSeek:
		return c.DeepSeekAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	}
	return ""
}

// Clone returns a deep copy so callers can hand out a value nobody else mutates.
func (c *Config) Clone() *Config {
	cp := *c
	cp.SelectedAnalysts = slices.Clone(c.SelectedAnalysts)
	return &cp
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

// SplitList parses a comma separated list, dropping blanks and normalising case.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
