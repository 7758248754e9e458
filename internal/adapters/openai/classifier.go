package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mikey/llm-harassment-filter/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Classifier is an implementation of the Classifier interface using OpenAI.
// It serves as the cheap gate classifier in the ensemble.
type Classifier struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	maxTextSize int
	logger      *zap.Logger
}

// verdictResponse represents the structured response from the model
type verdictResponse struct {
	Verdict       string   `json:"verdict"`
	Confidence    float64  `json:"confidence"`
	Reason        string   `json:"reason"`
	Categories    []string `json:"categories"`
	AdjustedScore float64  `json:"adjusted_score"`
}

// NewClassifier creates a new OpenAI classifier
func NewClassifier(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxTextSize int,
	logger *zap.Logger,
) *Classifier {
	return &Classifier{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		maxTextSize: maxTextSize,
		logger:      logger,
	}
}

// Classify judges a message and returns a structured verdict
func (c *Classifier) Classify(ctx context.Context, req *core.ClassifierRequest) (*core.ClassifierResult, error) {
	userContent := buildUserContent(req, c.maxTextSize)

	chatReq := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.SystemInstructions,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userContent,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	parsed, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("Malformed OpenAI classifier response",
			zap.Error(err),
			zap.String("raw_payload", resp.Choices[0].Message.Content))
		return nil, err
	}

	return toResult(parsed, c.modelName), nil
}

// buildUserContent assembles the prompt body, truncating the message text so
// hostile walls of text cannot blow the token budget
func buildUserContent(req *core.ClassifierRequest, maxTextSize int) string {
	var b strings.Builder
	b.WriteString(req.UserPrompt)
	if len(req.ContextWindow) > 0 {
		b.WriteString("\n\nConversation:\n")
		b.WriteString(strings.Join(req.ContextWindow, "\n"))
	}
	b.WriteString("\n\nMessage:\n")
	b.WriteString(truncateText(req.MessageText, maxTextSize))
	return b.String()
}

// truncateText caps the text at maxSize bytes on a valid UTF-8 boundary
func truncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}
	truncated := text[:maxSize]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "\n[... truncated ...]"
}

// parseVerdict unmarshals the model output, salvaging a JSON object embedded
// in surrounding prose when necessary
func parseVerdict(responseText string) (*verdictResponse, error) {
	var parsed verdictResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err == nil {
		return &parsed, nil
	}

	jsonStart := strings.Index(responseText, "{")
	jsonEnd := strings.LastIndex(responseText, "}")
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no JSON object in classifier response")
	}
	if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response as JSON: %w", err)
	}
	return &parsed, nil
}

// toResult converts the wire response into the core result type
func toResult(parsed *verdictResponse, modelUsed string) *core.ClassifierResult {
	categories := make([]core.Category, 0, len(parsed.Categories))
	for _, label := range parsed.Categories {
		categories = append(categories, core.NormalizeCategory(label))
	}
	return &core.ClassifierResult{
		Verdict:       core.Verdict(strings.ToLower(strings.TrimSpace(parsed.Verdict))),
		Confidence:    parsed.Confidence,
		Reason:        parsed.Reason,
		Categories:    categories,
		AdjustedScore: parsed.AdjustedScore,
		ModelUsed:     modelUsed,
		AnalyzedAt:    time.Now(),
	}
}
