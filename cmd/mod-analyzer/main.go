package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"github.com/mikey/llm-harassment-filter/internal/di"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(logger *zap.Logger, service *core.ModerationService) error {
		return analyze(flags, logger, service)
	}); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// analyze scores a single message read from a file or stdin and prints the
// verdict
func analyze(flags *di.CLIFlags, logger *zap.Logger, service *core.ModerationService) error {
	defer logger.Sync()

	var reader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", flags.InputFile))
		}
		defer file.Close()
		reader = file
		logger.Info("Reading message from file", zap.String("file", flags.InputFile))
	} else {
		reader = os.Stdin
		logger.Info("Reading message from stdin")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		logger.Fatal("Failed to read message", zap.Error(err))
	}
	text := strings.TrimSpace(string(data))

	msg := &core.Message{
		ID:        uuid.New().String(),
		SenderID:  flags.SenderID,
		GroupID:   flags.GroupID,
		Text:      text,
		Timestamp: time.Now(),
	}
	group := &core.GroupContext{
		MonitorMode: flags.MonitorMode,
	}

	fmt.Printf("\n=== Message Summary ===\n")
	fmt.Printf("Sender: %s\n", msg.SenderID)
	fmt.Printf("Group: %s\n", msg.GroupID)
	fmt.Printf("Length: %d bytes\n", len(text))
	fmt.Printf("\n=== Analysis ===\n")

	startTime := time.Now()
	result, err := service.ScoreMessage(context.Background(), msg, group)
	if err != nil {
		logger.Fatal("Failed to score message", zap.Error(err))
	}
	duration := time.Since(startTime)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Final score: %d\n", result.FinalScore)
	fmt.Printf("Severity: %s\n", result.Severity.String())
	fmt.Printf("Action: %s\n", result.Action)
	if len(result.Categories) > 0 {
		labels := make([]string, 0, len(result.Categories))
		for _, c := range result.Categories {
			labels = append(labels, string(c))
		}
		fmt.Printf("Categories: %s\n", strings.Join(labels, ", "))
	}
	fmt.Printf("Skipped: %t\n", result.Skipped)
	fmt.Printf("Escalated: %t\n", result.Escalated)
	fmt.Printf("Processing time: %v\n", duration)

	return nil
}
