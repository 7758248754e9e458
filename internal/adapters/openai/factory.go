package openai

import (
	"github.com/mikey/llm-harassment-filter/internal/config"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Factory creates new instances of the OpenAI classifier
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for OpenAI classifiers
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a new OpenAI classifier
func (f *Factory) CreateClassifier() (core.Classifier, error) {
	openaiCfg := f.cfg.GetOpenAI()
	client := openai.NewClient(openaiCfg.APIKey)

	return NewClassifier(
		client,
		openaiCfg.ModelName,
		openaiCfg.MaxTokens,
		openaiCfg.Temperature,
		openaiCfg.TopP,
		openaiCfg.MaxTextSize,
		f.logger,
	), nil
}
