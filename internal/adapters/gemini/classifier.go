package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Classifier is an implementation of the Classifier interface using Google
// Gemini. It is typically wired as the tiebreak or escalation reviewer.
type Classifier struct {
	client      *genai.Client
	model       *genai.GenerativeModel
	modelName   string
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

// NewClassifier creates a new Gemini classifier
func NewClassifier(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxTextSize int,
	logger *zap.Logger,
) (*Classifier, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &Classifier{
		client:      client,
		model:       model,
		modelName:   modelName,
		maxTextSize: maxTextSize,
		logger:      logger,
	}, nil
}

// Close closes the Gemini client
func (c *Classifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Classify judges a message and returns a structured verdict
func (c *Classifier) Classify(ctx context.Context, req *core.ClassifierRequest) (*core.ClassifierResult, error) {
	prompt := c.buildPrompt(req)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}
	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	parsed, err := parseVerdict(responseText)
	if err != nil {
		c.logger.Warn("Malformed Gemini classifier response",
			zap.Error(err),
			zap.String("raw_payload", responseText))
		return nil, err
	}

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
		ModelUsed:     c.modelName,
		AnalyzedAt:    time.Now(),
	}, nil
}

// buildPrompt assembles a single text prompt, Gemini has no system role in
// the generate-content API
func (c *Classifier) buildPrompt(req *core.ClassifierRequest) string {
	var b strings.Builder
	b.WriteString(req.SystemInstructions)
	b.WriteString("\n\n")
	b.WriteString(req.UserPrompt)
	if len(req.ContextWindow) > 0 {
		b.WriteString("\n\nConversation:\n")
		b.WriteString(strings.Join(req.ContextWindow, "\n"))
	}
	b.WriteString("\n\nMessage:\n")
	b.WriteString(truncateText(req.MessageText, c.maxTextSize))
	b.WriteString("\n\nRespond only with the JSON object and nothing else.")
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
