package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskio/ticket-classifier/internal/models"
)

// KeywordClassifier assigns a category by keyword matching when the model is
// unavailable or keeps violating the output schema. Its confidence never
// exceeds 0.7 so fallback results are distinguishable from model results.
type KeywordClassifier struct {
	patterns map[models.Category][]string
	logger   *slog.Logger
}

// KeywordRule maps a category to its indicator keywords.
type KeywordRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// KeywordConfigFile is the YAML root structure for a keyword rule pack.
type KeywordConfigFile struct {
	Rules []KeywordRule `yaml:"rules"`
}

// NewKeywordClassifier loads a keyword rule pack from path, falling back to
// the built-in patterns when path is empty or the file does not exist.
func NewKeywordClassifier(path string, logger *slog.Logger) (*KeywordClassifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kc := &KeywordClassifier{patterns: defaultPatterns(), logger: logger}
	if path == "" {
		return kc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return kc, nil
		}
		return nil, err
	}
	var cfg KeywordConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	loaded := make(map[models.Category][]string, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		category, ok := models.ParseCategory(rule.Category)
		if !ok {
			logger.Warn("keyword rule skipped, unknown category", slog.String("category", rule.Category))
			continue
		}
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) > 0 {
			loaded[category] = keywords
		}
	}
	if len(loaded) > 0 {
		kc.patterns = loaded
	}
	return kc, nil
}

func defaultPatterns() map[models.Category][]string {
	return map[models.Category][]string{
		models.CategoryProduct:  {"broken", "cracked", "damaged", "defective", "screen", "hardware", "physical", "button"},
		models.CategorySoftware: {"crash", "bug", "error", "install", "update", "app", "software", "freeze", "slow"},
		models.CategoryNetwork:  {"wifi", "internet", "connection", "network", "vpn", "connect", "online", "bluetooth"},
		models.CategoryBattery:  {"battery", "charging", "charge", "drain", "power", "dies", "percentage"},
		models.CategoryGeneral:  {"how to", "how do", "what is", "password", "account", "help", "reset", "where"},
	}
}

// Classify scores every category by keyword hits over the lowercased text.
// No hits at all yields General Question at 0.3; otherwise confidence grows
// with the winning category's share of total hits, capped at 0.7. Ties go to
// General Question when it participates, otherwise to the first category in
// declaration order.
func (kc *KeywordClassifier) Classify(title, description string) models.ClassificationResult {
	text := description
	if strings.TrimSpace(title) != "" {
		text = title + ". " + description
	}
	lower := strings.ToLower(text)

	scores := make(map[models.Category]int, len(kc.patterns))
	total := 0
	for category, keywords := range kc.patterns {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				scores[category]++
				total++
			}
		}
	}

	best := models.CategoryGeneral
	if total > 0 {
		bestScore := -1
		for _, category := range models.Categories() {
			score := scores[category]
			if score > bestScore {
				best = category
				bestScore = score
			} else if score == bestScore && category == models.CategoryGeneral {
				best = category
			}
		}
	}

	confidence := 0.3
	if total > 0 {
		confidence = 0.4 + float64(scores[best])/float64(total)*0.4
		if confidence > 0.7 {
			confidence = 0.7
		}
	}

	indicators := make([]string, 0, 3)
	for _, kw := range kc.patterns[best] {
		if strings.Contains(lower, kw) {
			indicators = append(indicators, kw)
			if len(indicators) == 3 {
				break
			}
		}
	}

	return models.ClassificationResult{
		Category:      best,
		Confidence:    confidence,
		Reasoning:     "Classified using keyword matching (fallback mode)",
		KeyIndicators: indicators,
	}
}
