package agent

import (
	"time"

	"github.com/compozy/techrag/pkg/config"
)

// ModelSettings are the sampling parameters of one completion use.
type ModelSettings struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// WebSearchSettings configure the web search step.
type WebSearchSettings struct {
	Enabled                 bool
	HasCredentials          bool
	Count                   int
	Country                 string
	SearchLang              string
	SafeSearch              string
	Freshness               string
	AllowDomains            []string
	DenyDomains             []string
	MaxContentLength        int
	RequireCalculationMatch bool
}

// Settings tune one orchestrator. The zero value is not usable; start from DefaultSettings.
type Settings struct {
	MaxIterations       int
	ConfidenceThreshold float64
	RelevanceThreshold  float64
	TopK                int
	MinScore            float64
	RRFConstant         int
	ParentExpansion     bool
	GradingConcurrency  int
	JudgmentCacheSize   int
	ExcerptChars        int
	MaxEvidence         int
	RecencyWindow       time.Duration

	Judge         ModelSettings
	Reformulation ModelSettings
	Generation    ModelSettings
	WebSearch     WebSearchSettings

	Budgets map[StepName]StepBudget
}

func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

// SettingsFromConfig maps the agent, llm and web_search sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	if cfg == nil {
		cfg = config.Default()
	}
	a := cfg.Agent
	l := cfg.LLM
	w := cfg.WebSearch
	budget := func(b config.StepBudgetConfig) StepBudget {
		return StepBudget{Timeout: b.Timeout, Retries: b.Retries, Backoff: 200 * time.Millisecond}
	}
	return Settings{
		MaxIterations:       a.MaxIterations,
		ConfidenceThreshold: a.ConfidenceThreshold,
		RelevanceThreshold:  a.RelevanceThreshold,
		TopK:                a.TopK,
		MinScore:            a.MinScore,
		RRFConstant:         a.RRFConstant,
		ParentExpansion:     a.ParentExpansion,
		GradingConcurrency:  a.GradingConcurrency,
		JudgmentCacheSize:   a.JudgmentCacheSize,
		ExcerptChars:        a.ExcerptChars,
		MaxEvidence:         a.MaxEvidence,
		RecencyWindow:       a.RecencyWindow,
		Judge: ModelSettings{
			Model:       l.JudgeModel,
			Temperature: l.JudgeTemperature,
			TopP:        l.TopP,
			MaxTokens:   l.JudgeMaxTokens,
		},
		Reformulation: ModelSettings{
			Model:       l.ReformulationModel,
			Temperature: l.ReformulationTemperature,
			TopP:        l.TopP,
			MaxTokens:   l.ReformulationMaxTokens,
		},
		Generation: ModelSettings{
			Model:       l.GenerationModel,
			Temperature: l.GenerationTemperature,
			TopP:        l.TopP,
			MaxTokens:   l.GenerationMaxTokens,
		},
		WebSearch: WebSearchSettings{
			Enabled:                 w.Enabled,
			HasCredentials:          w.APIKey.Value() != "",
			Count:                   w.Count,
			Country:                 w.Country,
			SearchLang:              w.SearchLang,
			SafeSearch:              w.SafeSearch,
			Freshness:               w.Freshness,
			AllowDomains:            w.AllowDomains,
			DenyDomains:             w.DenyDomains,
			MaxContentLength:        w.MaxContentLength,
			RequireCalculationMatch: w.RequireCalculationMatch,
		},
		Budgets: map[StepName]StepBudget{
			StepRetrieve:    budget(a.Steps.Retrieve),
			StepGrade:       budget(a.Steps.Grade),
			StepReformulate: budget(a.Steps.Reformulate),
			StepWebSearch:   budget(a.Steps.WebSearch),
			StepGenerate:    budget(a.Steps.Generate),
		},
	}
}

func (s *Settings) topK() int {
	if s.TopK <= 0 {
		return 5
	}
	return s.TopK
}
