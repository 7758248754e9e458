package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

// Classifier is an implementation of the Classifier interface using Amazon
// Bedrock. It serves as the independent second voter in the ensemble.
type Classifier struct {
	client      *bedrockruntime.Client
	modelID     string
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

// NewClassifier creates a new Bedrock classifier
func NewClassifier(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxTextSize int,
	logger *zap.Logger,
) *Classifier {
	return &Classifier{
		client:      client,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		maxTextSize: maxTextSize,
		logger:      logger,
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *Classifier) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *Classifier) isAmazonTitanModel() bool {
	return strings.Contains(c.modelID, "amazon.titan")
}

// Classify judges a message and returns a structured verdict
func (c *Classifier) Classify(ctx context.Context, req *core.ClassifierRequest) (*core.ClassifierResult, error) {
	prompt := c.buildPrompt(req)

	var payload []byte
	var err error
	if c.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": c.maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	} else if c.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := c.extractResponseText(resp.Body)
	if err != nil {
		return nil, err
	}

	parsed, err := parseVerdict(responseText)
	if err != nil {
		c.logger.Warn("Malformed Bedrock classifier response",
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
		ModelUsed:     c.modelID,
		AnalyzedAt:    time.Now(),
	}, nil
}

// buildPrompt assembles the full prompt including system instructions, since
// the invoke-model API takes a single text body
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
	return b.String()
}

// extractResponseText pulls the completion text out of the model-specific
// response envelope
func (c *Classifier) extractResponseText(body []byte) (string, error) {
	if c.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}
	if c.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}

	var genericResp struct {
		Output   string `json:"output"`
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
	}
	switch {
	case genericResp.Output != "":
		return genericResp.Output, nil
	case genericResp.Text != "":
		return genericResp.Text, nil
	case genericResp.Response != "":
		return genericResp.Response, nil
	default:
		return string(body), nil
	}
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
