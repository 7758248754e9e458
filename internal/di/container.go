package di

import (
	"flag"
	"os"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-harassment-filter/internal/adapters/transport"
	"github.com/mikey/llm-harassment-filter/internal/config"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"github.com/mikey/llm-harassment-filter/internal/factory"
	"github.com/mikey/llm-harassment-filter/internal/logging"
)

// CLIFlags contains all command line flags for the one-shot analyzer
type CLIFlags struct {
	// Classifier role flags
	GateProvider       string
	SecondProvider     string
	TiebreakProvider   string
	EscalationProvider string

	// Provider credential flags
	OpenAIAPIKey   string
	GeminiAPIKey   string
	BedrockRegion  string
	BedrockModelID string

	// Moderation flags
	MonitorMode bool
	GroupID     string
	SenderID    string

	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.GateProvider, "gate-provider", "openai", "Gate classifier provider (openai, bedrock, gemini, none)")
	flag.StringVar(&flags.SecondProvider, "second-provider", "none", "Second classifier provider (openai, bedrock, gemini, none)")
	flag.StringVar(&flags.TiebreakProvider, "tiebreak-provider", "none", "Tiebreak classifier provider (openai, bedrock, gemini, none)")
	flag.StringVar(&flags.EscalationProvider, "escalation-provider", "none", "Escalation classifier provider (openai, bedrock, gemini, none)")

	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	flag.BoolVar(&flags.MonitorMode, "monitor", false, "Monitor mode: downgrade destructive actions to alerts")
	flag.StringVar(&flags.GroupID, "group", "cli", "Group ID for the analyzed message")
	flag.StringVar(&flags.SenderID, "sender", "cli-sender", "Sender ID for the analyzed message")

	flag.StringVar(&flags.InputFile, "file", "", "Input message file (use stdin if not specified)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// classifierSet groups the four pipeline classifiers so they can travel
// through the container as one value
type classifierSet struct {
	Gate       core.Classifier
	Second     core.Classifier
	Tiebreak   core.Classifier
	Escalation core.Classifier
}

// BuildContainer creates and configures a dependency injection container for
// the daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(config.New); err != nil {
		return nil, err
	}
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}
	return provideServices(container)
}

// BuildCLIContainer creates and configures a dependency injection container
// for the one-shot analyzer
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}
	return provideServices(container)
}

// provideServices registers everything downstream of config and logger
func provideServices(container *dig.Container) (*dig.Container, error) {
	// Factories
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}

	// Store
	if err := container.Provide(func(f *factory.StoreFactory) (core.KeyValueStore, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}

	// Classifiers
	if err := container.Provide(func(f *factory.ClassifierFactory) (*classifierSet, error) {
		gate, err := f.CreateGateClassifier()
		if err != nil {
			return nil, err
		}
		second, err := f.CreateSecondClassifier()
		if err != nil {
			return nil, err
		}
		tiebreak, err := f.CreateTiebreakClassifier()
		if err != nil {
			return nil, err
		}
		escalation, err := f.CreateEscalationClassifier()
		if err != nil {
			return nil, err
		}
		return &classifierSet{
			Gate:       gate,
			Second:     second,
			Tiebreak:   tiebreak,
			Escalation: escalation,
		}, nil
	}); err != nil {
		return nil, err
	}

	// Rule-based pipeline stages
	if err := container.Provide(func(cfg *config.Config) *core.Normalizer {
		return core.NewNormalizer(cfg.GetModeration().Aliases)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) *core.CriticalFilter {
		return core.NewCriticalFilter(cfg.GetModeration().CriticalTerms)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewLexiconScorer); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *core.TemporalAnalyzer {
		return core.NewTemporalAnalyzer(temporalConfig(cfg), logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) *core.CompositeScorer {
		return core.NewCompositeScorer(compositeConfig(cfg))
	}); err != nil {
		return nil, err
	}

	// Classifier-backed stages
	if err := container.Provide(func(cfg *config.Config, set *classifierSet, logger *zap.Logger) *core.Ensemble {
		return core.NewEnsemble(set.Gate, set.Second, set.Tiebreak, ensembleConfig(cfg), logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, set *classifierSet, temporal *core.TemporalAnalyzer, logger *zap.Logger) *core.Escalator {
		return core.NewEscalator(set.Escalation, temporal, escalationConfig(cfg), logger)
	}); err != nil {
		return nil, err
	}

	// Feedback loop
	if err := container.Provide(func(cfg *config.Config, lexicon *core.LexiconScorer, store core.KeyValueStore, logger *zap.Logger) *core.FeedbackLoop {
		return core.NewFeedbackLoop(lexicon, store, feedbackConfig(cfg), logger)
	}); err != nil {
		return nil, err
	}

	// Moderation service
	if err := container.Provide(func(
		normalizer *core.Normalizer,
		critical *core.CriticalFilter,
		lexicon *core.LexiconScorer,
		temporal *core.TemporalAnalyzer,
		composite *core.CompositeScorer,
		ensemble *core.Ensemble,
		escalator *core.Escalator,
		store core.KeyValueStore,
		logger *zap.Logger,
	) *core.ModerationService {
		return core.NewModerationService(normalizer, critical, lexicon, temporal, composite, ensemble, escalator, store, logger)
	}); err != nil {
		return nil, err
	}

	// Transport
	if err := container.Provide(func(cfg *config.Config, service *core.ModerationService, feedback *core.FeedbackLoop, logger *zap.Logger) core.ChatTransport {
		return transport.NewCLITransport(service, feedback, os.Stdin, os.Stdout, cfg.GetModeration().WhitelistedGroups, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

func temporalConfig(cfg *config.Config) core.TemporalConfig {
	return core.TemporalConfig{
		WindowSize:         cfg.GetInt("temporal.window_size"),
		WindowAge:          cfg.GetDuration("temporal.window_age"),
		PileOnWindow:       cfg.GetDuration("temporal.pile_on_window"),
		RepeatTargetWindow: cfg.GetDuration("temporal.repeat_target_window"),
		HistoryHorizon:     cfg.GetDuration("temporal.history_horizon"),
		SweepInterval:      cfg.GetDuration("temporal.sweep_interval"),
	}
}

func compositeConfig(cfg *config.Config) core.CompositeConfig {
	return core.CompositeConfig{
		TargetingMultiplier:     cfg.GetFloat64("composite.targeting_multiplier"),
		PublicShamingMultiplier: cfg.GetFloat64("composite.public_shaming_multiplier"),
		FriendGroupDampening:    cfg.GetFloat64("composite.friend_group_dampening"),
		CriticalFloor:           cfg.GetInt("composite.critical_floor"),
	}
}

func ensembleConfig(cfg *config.Config) core.EnsembleConfig {
	return core.EnsembleConfig{
		Timeout:        cfg.GetDuration("ensemble.timeout"),
		SkipConfidence: cfg.GetFloat64("ensemble.skip_confidence"),
		HealthyLow:     cfg.GetFloat64("ensemble.healthy_low"),
		HealthyHigh:    cfg.GetFloat64("ensemble.healthy_high"),
		MinSamples:     int64(cfg.GetInt("ensemble.min_samples")),
	}
}

func escalationConfig(cfg *config.Config) core.EscalationConfig {
	return core.EscalationConfig{
		BandLow:             cfg.GetInt("escalation.band_low"),
		BandHigh:            cfg.GetInt("escalation.band_high"),
		ContextBefore:       cfg.GetInt("escalation.context_before"),
		ContextAfter:        cfg.GetInt("escalation.context_after"),
		ConfidenceThreshold: cfg.GetFloat64("escalation.confidence_threshold"),
		CallsPerHour:        cfg.GetInt("escalation.calls_per_hour"),
		Timeout:             cfg.GetDuration("escalation.timeout"),
	}
}

func feedbackConfig(cfg *config.Config) core.FeedbackConfig {
	return core.FeedbackConfig{
		BatchSize:      cfg.GetInt("feedback.batch_size"),
		RetuneInterval: cfg.GetDuration("feedback.retune_interval"),
		QueueSize:      cfg.GetInt("feedback.queue_size"),
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	v.Set("llm.gate_provider", flags.GateProvider)
	v.Set("llm.second_provider", flags.SecondProvider)
	v.Set("llm.tiebreak_provider", flags.TiebreakProvider)
	v.Set("llm.escalation_provider", flags.EscalationProvider)

	v.Set("openai.api_key", flags.OpenAIAPIKey)
	v.Set("gemini.api_key", flags.GeminiAPIKey)
	v.Set("bedrock.region", flags.BedrockRegion)
	v.Set("bedrock.model_id", flags.BedrockModelID)

	v.Set("moderation.monitor_mode", flags.MonitorMode)
	v.Set("store.type", "memory")

	return config.NewFromViper(v)
}
