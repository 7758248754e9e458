package gemini

import (
	"github.com/mikey/llm-harassment-filter/internal/config"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

// Factory creates new instances of the Gemini classifier
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for Gemini classifiers
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a new Gemini classifier
func (f *Factory) CreateClassifier() (core.Classifier, error) {
	geminiCfg := f.cfg.GetGemini()
	return NewClassifier(
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		geminiCfg.MaxTextSize,
		f.logger,
	)
}
