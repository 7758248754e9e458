package logging

import (
	"testing"

	"github.com/mikey/llm-harassment-filter/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		level        string
		debugEnabled bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"nonsense falls back to info", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			v := config.NewEmptyViper()
			v.Set("logging.level", tt.level)
			v.Set("logging.format", "json")

			logger, err := InitLogger(config.NewFromViper(v))
			if err != nil {
				t.Fatal(err)
			}
			defer logger.Sync()

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.debugEnabled {
				t.Errorf("debug enabled = %t, want %t", got, tt.debugEnabled)
			}
		})
	}
}

func TestInitConsoleLogger(t *testing.T) {
	logger, err := InitConsoleLogger(true, false)
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Sync()

	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose console logger does not enable debug")
	}
}
