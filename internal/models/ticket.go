package models

import (
	"strings"
	"time"
)

// Category enumerates the closed set of ticket classifications.
type Category string

const (
	CategoryProduct  Category = "Product Issue"
	CategorySoftware Category = "Software Issue"
	CategoryNetwork  Category = "Network Issue"
	CategoryBattery  Category = "Battery Issue"
	CategoryGeneral  Category = "General Question"
)

// Categories lists every valid category in presentation order.
func Categories() []Category {
	return []Category{
		CategoryProduct,
		CategorySoftware,
		CategoryNetwork,
		CategoryBattery,
		CategoryGeneral,
	}
}

// ParseCategory resolves a raw string into the closed enumeration. An exact
// match is preferred; otherwise a case-insensitive containment match is
// accepted so that model outputs like "category: Product Issue" still resolve.
func ParseCategory(raw string) (Category, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, cat := range Categories() {
		if trimmed == string(cat) {
			return cat, true
		}
	}
	lower := strings.ToLower(trimmed)
	for _, cat := range Categories() {
		if strings.Contains(lower, strings.ToLower(string(cat))) {
			return cat, true
		}
	}
	return "", false
}

// Status captures the ticket lifecycle.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClassified Status = "classified"
	StatusCorrected  Status = "corrected"
	StatusResolved   Status = "resolved"
)

// Ticket is the persisted support ticket record. The relational store owns
// it exclusively; only the ticket service writes to it.
type Ticket struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	PredictedCategory Category  `json:"predicted_category,omitempty"`
	ActualCategory    Category  `json:"actual_category,omitempty"`
	ConfidenceScore   float64   `json:"confidence_score"`
	Reasoning         string    `json:"reasoning,omitempty"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SimilarTicket is one retrieval hit from the similarity index.
type SimilarTicket struct {
	ID         string   `json:"id"`
	Category   Category `json:"category"`
	Similarity float64  `json:"similarity"`

	// Excerpt carries the indexed document text for prompt construction.
	// It is not part of the API response.
	Excerpt string `json:"-"`
}

// ClassificationResult is constructed per classification call. It is not
// persisted as its own entity; a snapshot is embedded into the ticket row
// and the fingerprint cache.
type ClassificationResult struct {
	Category       Category        `json:"category"`
	Confidence     float64         `json:"confidence"`
	Reasoning      string          `json:"reasoning"`
	KeyIndicators  []string        `json:"key_indicators"`
	SimilarTickets []SimilarTicket `json:"similar_tickets"`
	LatencyMs      float64         `json:"latency_ms"`
	Cached         bool            `json:"cached"`
	RAGUsed        bool            `json:"rag_used"`
}

// FeedbackLogEntry records one human correction. Append-only.
type FeedbackLogEntry struct {
	ID        int64     `json:"id"`
	TicketID  string    `json:"ticket_id"`
	OldLabel  Category  `json:"old_label"`
	NewLabel  Category  `json:"new_label"`
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Clamp01 bounds a confidence value into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
