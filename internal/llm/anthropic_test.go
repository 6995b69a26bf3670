package llm

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/taskio/ticket-classifier/internal/models"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newStubClassifier(t *testing.T, transport roundTripFunc) *AnthropicClassifier {
	t.Helper()
	return &AnthropicClassifier{
		client:    anthropic.NewClient(option.WithAPIKey("test-key"), option.WithHTTPClient(&http.Client{Transport: transport})),
		model:     defaultModel,
		maxTokens: 1024,
		timeout:   2 * time.Second,
		logger:    slog.Default(),
	}
}

func messagesResponse(text string) *http.Response {
	body := `{"id":"msg_1","type":"message","role":"assistant","model":"m",` +
		`"content":[{"type":"text","text":` + strconv.Quote(text) + `}],` +
		`"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestClassifyBoundsCompletionDeadline(t *testing.T) {
	var sawDeadline bool
	c := newStubClassifier(t, func(req *http.Request) (*http.Response, error) {
		_, sawDeadline = req.Context().Deadline()
		return messagesResponse(`{"category": "Network Issue", "confidence": 0.8, "reasoning": "wifi"}`), nil
	})

	result, err := c.Classify(context.Background(), "WiFi down", "my wifi keeps dropping", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Category != models.CategoryNetwork {
		t.Fatalf("unexpected category: %s", result.Category)
	}
	if !sawDeadline {
		t.Fatalf("completion request must carry a deadline even when the caller's context has none")
	}
}

func TestNewAnthropicClassifierDefaultsTimeout(t *testing.T) {
	c := NewAnthropicClassifier("key", "", 0, nil)
	if c.timeout != defaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultTimeout, c.timeout)
	}
	if c.model != defaultModel {
		t.Fatalf("expected default model, got %s", c.model)
	}
}

func TestParseClassificationPlainJSON(t *testing.T) {
	text := `{"category": "Network Issue", "confidence": 0.87, "reasoning": "connectivity symptoms", "key_indicators": ["wifi", "disconnect"]}`
	result, err := parseClassification(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Category != models.CategoryNetwork {
		t.Fatalf("unexpected category: %s", result.Category)
	}
	if result.Confidence != 0.87 {
		t.Fatalf("unexpected confidence: %f", result.Confidence)
	}
	if len(result.KeyIndicators) != 2 {
		t.Fatalf("unexpected indicators: %+v", result.KeyIndicators)
	}
}

func TestParseClassificationStripsMarkdownFence(t *testing.T) {
	text := "```json\n{\"category\": \"Battery Issue\", \"confidence\": 0.9, \"reasoning\": \"drain\"}\n```"
	result, err := parseClassification(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Category != models.CategoryBattery {
		t.Fatalf("unexpected category: %s", result.Category)
	}
}

func TestParseClassificationContainmentCategory(t *testing.T) {
	text := `{"category": "This looks like a Software Issue to me", "confidence": 0.6, "reasoning": "crash"}`
	result, err := parseClassification(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Category != models.CategorySoftware {
		t.Fatalf("expected containment match, got %s", result.Category)
	}
}

func TestParseClassificationRejectsUnknownCategory(t *testing.T) {
	text := `{"category": "Hardware Problem", "confidence": 0.9, "reasoning": "broken"}`
	if _, err := parseClassification(text); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestParseClassificationRejectsNonJSON(t *testing.T) {
	if _, err := parseClassification("I think this is a network issue."); err == nil {
		t.Fatalf("expected error for prose output")
	}
}

func TestParseClassificationClampsConfidence(t *testing.T) {
	text := `{"category": "Product Issue", "confidence": 1.7, "reasoning": "cracked"}`
	result, err := parseClassification(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected clamp to 1, got %f", result.Confidence)
	}
}

func TestParseClassificationDefaultsMissingConfidence(t *testing.T) {
	text := `{"category": "General Question", "reasoning": "how-to"}`
	result, err := parseClassification(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 0.5 {
		t.Fatalf("expected default 0.5, got %f", result.Confidence)
	}
}

func TestBuildUserPromptIncludesSimilarContext(t *testing.T) {
	similar := []models.SimilarTicket{
		{ID: "t-1", Category: models.CategoryNetwork, Similarity: 0.82, Excerpt: "wifi drops every evening around 8pm"},
	}
	prompt := buildUserPrompt("WiFi issue", "my connection keeps dropping", similar)
	if !strings.Contains(prompt, "[Network Issue]") {
		t.Fatalf("expected category tag in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "similarity: 82%") {
		t.Fatalf("expected similarity percent in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Title: WiFi issue") {
		t.Fatalf("expected title in prompt:\n%s", prompt)
	}
}

func TestBuildUserPromptTruncatesLongExcerpts(t *testing.T) {
	similar := []models.SimilarTicket{
		{ID: "t-1", Category: models.CategorySoftware, Similarity: 0.5, Excerpt: strings.Repeat("x", 200)},
	}
	prompt := buildUserPrompt("", "description", similar)
	if !strings.Contains(prompt, strings.Repeat("x", 80)+"...") {
		t.Fatalf("expected truncated excerpt:\n%s", prompt)
	}
	if strings.Contains(prompt, strings.Repeat("x", 81)) {
		t.Fatalf("excerpt not truncated:\n%s", prompt)
	}
}

func TestBuildUserPromptWithoutContext(t *testing.T) {
	prompt := buildUserPrompt("", "standalone ticket", nil)
	if !strings.Contains(prompt, "No similar tickets found.") {
		t.Fatalf("expected empty-context marker:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Title: No title provided") {
		t.Fatalf("expected title placeholder:\n%s", prompt)
	}
}

func TestBuildSystemPromptNamesAllCategories(t *testing.T) {
	prompt := buildSystemPrompt()
	for _, cat := range models.Categories() {
		if !strings.Contains(prompt, string(cat)) {
			t.Fatalf("system prompt missing category %s", cat)
		}
	}
	if !strings.Contains(prompt, "JSON only") {
		t.Fatalf("system prompt must demand JSON-only output")
	}
}
