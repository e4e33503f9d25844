package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/dataflows"
	"github.com/dyike/CortexDesk/internal/display"
)

// PromptForTicker prompts the user to enter a ticker symbol
func PromptForTicker() (string, error) {
	var ticker string
	prompt := &survey.Input{
		Message: "Enter the ticker symbol (e.g., SBER, GAZP, AAPL):",
		Help:    "MOEX tickers are served from MOEX ISS, everything else from Yahoo Finance",
	}

	err := survey.AskOne(prompt, &ticker, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		return dataflows.ValidateSymbol(strings.ToUpper(strings.TrimSpace(str)))
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToUpper(ticker)), nil
}

// PromptForAnalysisDate prompts the user to enter an analysis date
func PromptForAnalysisDate() (string, error) {
	var dateStr string
	prompt := &survey.Input{
		Message: "Enter the analysis date (YYYY-MM-DD):",
		Help:    "Format: YYYY-MM-DD (e.g., 2025-01-10).",
		Default: time.Now().Format(consts.DateLayout),
	}

	err := survey.AskOne(prompt, &dateStr, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		parsed, err := time.Parse(consts.DateLayout, strings.TrimSpace(str))
		if err != nil {
			return errors.New("invalid date format, use YYYY-MM-DD")
		}
		if parsed.After(time.Now().AddDate(0, 0, 1)) {
			return errors.New("analysis date cannot be in the future")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(dateStr), nil
}

// PromptForAnalysts prompts the user to select analyst team members
func PromptForAnalysts(current []string) ([]string, error) {
	options := make([]string, 0, len(consts.AnalystKeys))
	for _, key := range consts.AnalystKeys {
		options = append(options, analystDisplayName(key))
	}
	defaults := make([]string, 0, len(current))
	for _, key := range current {
		defaults = append(defaults, analystDisplayName(key))
	}

	var selected []string
	prompt := &survey.MultiSelect{
		Message: "Select analyst team members:",
		Options: options,
		Help:    "Use space to select, enter to confirm.",
		Default: defaults,
	}
	if err := survey.AskOne(prompt, &selected, survey.WithValidator(survey.MinItems(1))); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(selected))
	for _, name := range selected {
		if key, ok := analystKeyFor(name); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// PromptForResearchDepth prompts the user to select how long the debates run
func PromptForResearchDepth() (ResearchDepth, error) {
	depths := []ResearchDepth{ShallowResearch, MediumResearch, DeepResearch}
	options := make([]string, len(depths))
	for i, d := range depths {
		options[i] = fmt.Sprintf("%s (%d rounds)", d, d.Rounds())
	}

	var selected string
	prompt := &survey.Select{
		Message: "Select research depth:",
		Options: options,
		Default: options[0],
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return ResearchDepth(strings.Fields(selected)[0]), nil
}

// PromptForLLMProvider prompts the user to select an LLM provider
func PromptForLLMProvider(current string) (string, error) {
	options := []string{config.ProviderDeepSeek, config.ProviderOpenAI, config.ProviderGemini}
	var selected string
	prompt := &survey.Select{
		Message: "Select LLM provider:",
		Options: options,
		Help:    "Make sure the matching API key is set in the environment or config file.",
		Default: current,
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}

// PromptForModels prompts the user to select quick and deep thinking models
func PromptForModels(provider string) (string, string, error) {
	quickModels, deepModels := providerModels(provider)
	if len(quickModels) == 0 || len(deepModels) == 0 {
		return "", "", fmt.Errorf("no models available for provider %s", provider)
	}

	var quickModel string
	if err := survey.AskOne(&survey.Select{
		Message: "Select quick-thinking model (analysts, debaters, trader):",
		Options: quickModels,
		Default: quickModels[0],
	}, &quickModel); err != nil {
		return "", "", err
	}

	var deepModel string
	if err := survey.AskOne(&survey.Select{
		Message: "Select deep-thinking model (managers and final decision):",
		Options: deepModels,
		Default: deepModels[0],
	}, &deepModel); err != nil {
		return "", "", err
	}
	return quickModel, deepModel, nil
}

// PromptForConfirmation prompts the user to confirm their selections
func PromptForConfirmation(s UserSelections) (bool, error) {
	names := make([]string, len(s.Analysts))
	for i, key := range s.Analysts {
		names[i] = analystDisplayName(key)
	}
	fmt.Println(display.Title("Analysis configuration"))
	fmt.Printf("Ticker:          %s\n", s.Ticker)
	fmt.Printf("Date:            %s\n", s.AnalysisDate)
	fmt.Printf("Analysts:        %s\n", strings.Join(names, ", "))
	fmt.Printf("Research depth:  %s (%d rounds)\n", s.ResearchDepth, s.ResearchDepth.Rounds())
	fmt.Printf("Provider:        %s\n", s.LLMProvider)
	fmt.Printf("Quick model:     %s\n", s.QuickModel)
	fmt.Printf("Deep model:      %s\n", s.DeepModel)

	var confirmed bool
	err := survey.AskOne(&survey.Confirm{
		Message: "Proceed with this analysis configuration?",
		Default: true,
	}, &confirmed)
	return confirmed, err
}

// PromptForRestartOrExit asks whether to run another analysis.
func PromptForRestartOrExit() (bool, error) {
	var again bool
	err := survey.AskOne(&survey.Confirm{
		Message: "Start a new analysis?",
		Default: false,
	}, &again)
	return again, err
}

func collectSelections(cfg *config.Config) (UserSelections, error) {
	var s UserSelections
	var err error
	if s.Ticker, err = PromptForTicker(); err != nil {
		return s, err
	}
	if s.AnalysisDate, err = PromptForAnalysisDate(); err != nil {
		return s, err
	}
	if s.Analysts, err = PromptForAnalysts(cfg.SelectedAnalysts); err != nil {
		return s, err
	}
	if s.ResearchDepth, err = PromptForResearchDepth(); err != nil {
		return s, err
	}
	if s.LLMProvider, err = PromptForLLMProvider(cfg.LLMProvider); err != nil {
		return s, err
	}
	if s.QuickModel, s.DeepModel, err = PromptForModels(s.LLMProvider); err != nil {
		return s, err
	}
	return s, nil
}

// runInteractiveMode asks for a run configuration and executes it until the user stops.
func runInteractiveMode(cmd *cobra.Command, a *app) error {
	fmt.Fprintln(a.out, display.Title("CortexDesk - multi-agent trading analysis"))
	for {
		cfg := a.config()
		selections, err := collectSelections(cfg)
		if err != nil {
			return err
		}
		ok, err := PromptForConfirmation(selections)
		if err != nil {
			return err
		}
		if ok {
			selections.Apply(cfg)
			ctx, cancel := signalContext(cmd)
			err = runAnalyzeCommand(ctx, a, cfg, selections.Ticker, selections.AnalysisDate, analyzeOptions{})
			cancel()
			if err != nil {
				fmt.Fprintln(a.out, display.Error("Analysis failed: "+err.Error()))
			}
		}

		again, err := PromptForRestartOrExit()
		if err != nil || !again {
			return err
		}
	}
}
