package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/taskio/ticket-classifier/internal/models"
)

// ErrSchemaViolation reports that the model produced output that could not
// be parsed into a valid classification after the corrective retry. Callers
// degrade to the keyword fallback; the error never reaches API clients.
var ErrSchemaViolation = errors.New("model response violates classification schema")

const (
	defaultModel   = "claude-sonnet-4-5-20250929"
	defaultTimeout = 30 * time.Second
)

const categoryDefinitions = `- Product Issue: physical hardware problems - cracked screens, broken buttons, damaged devices, defective parts, manufacturing issues
- Software Issue: application problems - crashes, bugs, errors, failed installations, update issues, freezing, performance problems
- Network Issue: connectivity problems - WiFi not working, internet outages, VPN failures, slow connections, Bluetooth issues
- Battery Issue: power problems - fast draining, won't charge, overheating while charging, battery percentage issues, power-off problems
- General Question: information requests - how-to questions, account help, password resets, feature inquiries, general support`

// AnthropicClassifier calls the Anthropic Messages API and parses the
// JSON-only contract the prompt demands. One corrective retry is attempted
// before giving up with ErrSchemaViolation.
type AnthropicClassifier struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAnthropicClassifier builds a classifier for the given API key. An empty
// model falls back to the default; a non-positive timeout falls back to 30s.
func NewAnthropicClassifier(apiKey, model string, timeout time.Duration, logger *slog.Logger) *AnthropicClassifier {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicClassifier{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 1024,
		timeout:   timeout,
		logger:    logger,
	}
}

// Classify sends the ticket and its retrieved context to the model and
// returns the parsed result. Confidence is clamped to [0,1]; the category is
// validated against the closed set.
func (c *AnthropicClassifier) Classify(ctx context.Context, title, description string, similar []models.SimilarTicket) (models.ClassificationResult, error) {
	systemPrompt := buildSystemPrompt()
	userPrompt := buildUserPrompt(title, description, similar)

	text, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return models.ClassificationResult{}, err
	}

	result, parseErr := parseClassification(text)
	if parseErr == nil {
		return result, nil
	}

	// One corrective retry: feed the violation back so the model can fix
	// its own output.
	c.logger.Warn("model output rejected, retrying once", slog.Any("error", parseErr))
	retryPrompt := userPrompt + fmt.Sprintf(
		"\n\nYour previous response was rejected: %v.\nRespond again with ONLY the JSON object, no markdown.", parseErr)
	text, err = c.complete(ctx, systemPrompt, retryPrompt)
	if err != nil {
		return models.ClassificationResult{}, err
	}
	result, parseErr = parseClassification(text)
	if parseErr != nil {
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrSchemaViolation, parseErr)
	}
	return result, nil
}

func (c *AnthropicClassifier) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	// Incoming request contexts carry no deadline; a stalled model round-trip
	// must time out so the caller can take the fallback path.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic api: no text content in response")
}

func buildSystemPrompt() string {
	return fmt.Sprintf(`You are an expert support ticket classifier for a technology company.
Classify each ticket into exactly ONE category.

Categories:
%s

Provide confidence based on clarity: 0.9+ for obvious, 0.7-0.9 for clear, 0.5-0.7 for ambiguous.

Respond with JSON only (no markdown):
{"category": "<category name>", "confidence": <0.0-1.0>, "reasoning": "<2-3 sentence explanation>", "key_indicators": ["<phrase1>", "<phrase2>"]}`, categoryDefinitions)
}

func buildUserPrompt(title, description string, similar []models.SimilarTicket) string {
	similarBlock := "No similar tickets found."
	if len(similar) > 0 {
		var b strings.Builder
		for _, s := range similar {
			excerpt := s.Excerpt
			if len(excerpt) > 80 {
				excerpt = excerpt[:80] + "..."
			}
			fmt.Fprintf(&b, "- [%s] %q (similarity: %.0f%%)\n", s.Category, excerpt, s.Similarity*100)
		}
		similarBlock = strings.TrimRight(b.String(), "\n")
	}

	if strings.TrimSpace(title) == "" {
		title = "No title provided"
	}
	return fmt.Sprintf(`Similar past tickets (for context):
%s

Ticket to classify:
Title: %s
Description: %s`, similarBlock, title, description)
}

type rawClassification struct {
	Category      string   `json:"category"`
	Confidence    *float64 `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	KeyIndicators []string `json:"key_indicators"`
}

func parseClassification(text string) (models.ClassificationResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw rawClassification
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return models.ClassificationResult{}, fmt.Errorf("not valid JSON: %v", err)
	}

	category, ok := models.ParseCategory(raw.Category)
	if !ok {
		return models.ClassificationResult{}, fmt.Errorf("unknown category %q", raw.Category)
	}

	confidence := 0.5
	if raw.Confidence != nil {
		confidence = models.Clamp01(*raw.Confidence)
	}

	return models.ClassificationResult{
		Category:      category,
		Confidence:    confidence,
		Reasoning:     raw.Reasoning,
		KeyIndicators: raw.KeyIndicators,
	}, nil
}
