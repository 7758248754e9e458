package factory

import (
	"fmt"

	"github.com/mikey/llm-harassment-filter/internal/adapters/bedrock"
	"github.com/mikey/llm-harassment-filter/internal/adapters/gemini"
	"github.com/mikey/llm-harassment-filter/internal/adapters/openai"
	"github.com/mikey/llm-harassment-filter/internal/config"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

// ClassifierFactory creates classifiers for the pipeline roles
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a classifier for the given provider
func (f *ClassifierFactory) CreateClassifier(provider string) (core.Classifier, error) {
	switch provider {
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateClassifier()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateClassifier()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateClassifier()
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// CreateGateClassifier creates the cheap first-pass classifier
func (f *ClassifierFactory) CreateGateClassifier() (core.Classifier, error) {
	return f.CreateClassifier(f.cfg.GetLLMRoles().Gate)
}

// CreateSecondClassifier creates the independent second voter
func (f *ClassifierFactory) CreateSecondClassifier() (core.Classifier, error) {
	return f.CreateClassifier(f.cfg.GetLLMRoles().Second)
}

// CreateTiebreakClassifier creates the disagreement resolver
func (f *ClassifierFactory) CreateTiebreakClassifier() (core.Classifier, error) {
	return f.CreateClassifier(f.cfg.GetLLMRoles().Tiebreak)
}

// CreateEscalationClassifier creates the ambiguous-band reviewer
func (f *ClassifierFactory) CreateEscalationClassifier() (core.Classifier, error) {
	return f.CreateClassifier(f.cfg.GetLLMRoles().Escalation)
}
