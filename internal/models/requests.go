package models

import "time"

// CreateTicketRequest is the payload for ticket submission and for the
// classify-only preview endpoint.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

const (
	// MinDescriptionLength is enforced before any pipeline work begins.
	MinDescriptionLength = 10
	// MaxDescriptionLength bounds description size.
	MaxDescriptionLength = 5000
	// MaxTitleLength bounds the optional title.
	MaxTitleLength = 255
)

// Validate checks request bounds, returning a ValidationError on failure.
func (r CreateTicketRequest) Validate() error {
	if len(r.Description) < MinDescriptionLength {
		return &ValidationError{Field: "description", Reason: "must be at least 10 characters"}
	}
	if len(r.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Reason: "must be at most 5000 characters"}
	}
	if len(r.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Reason: "must be at most 255 characters"}
	}
	return nil
}

// CorrectionRequest carries a human-supplied corrected label.
type CorrectionRequest struct {
	CorrectedCategory string `json:"corrected_category"`
	Feedback          string `json:"feedback"`
}

// TicketWithClassification pairs the persisted ticket with the result
// returned to the caller.
type TicketWithClassification struct {
	Ticket         Ticket               `json:"ticket"`
	Classification ClassificationResult `json:"classification"`
}

// ListTicketsRequest filters and paginates the ticket listing.
type ListTicketsRequest struct {
	Page     int
	Limit    int
	Status   Status
	Category Category
}

// ListTicketsResponse is a page of tickets.
type ListTicketsResponse struct {
	Tickets []Ticket `json:"tickets"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
	Pages   int      `json:"pages"`
}

// CategoryStat is one slice of the category distribution.
type CategoryStat struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Percent  float64  `json:"percentage"`
}

// AccuracyStats summarises prediction accuracy over corrected tickets.
type AccuracyStats struct {
	TotalReviewed      int     `json:"total_reviewed"`
	CorrectPredictions int     `json:"correct_predictions"`
	AccuracyPercent    float64 `json:"accuracy_percentage"`
}

// AnalyticsOverview aggregates read-only dashboard metrics. The relational
// store computes the underlying sums and counts.
type AnalyticsOverview struct {
	TotalTickets         int            `json:"total_tickets"`
	Accuracy             AccuracyStats  `json:"accuracy"`
	CategoryDistribution []CategoryStat `json:"category_distribution"`
	AvgConfidence        float64        `json:"avg_confidence"`
	IndexedTickets       int            `json:"vector_store_count"`
}

// ConfusionPattern is one recurring old-label to new-label correction.
type ConfusionPattern struct {
	From     Category  `json:"from"`
	To       Category  `json:"to"`
	Count    int       `json:"count"`
	Share    float64   `json:"share"`
	LastSeen time.Time `json:"last_seen"`
}

// CorrectionsReport summarises recent human corrections for the analytics
// endpoint.
type CorrectionsReport struct {
	TotalCorrections int                `json:"total_corrections"`
	Patterns         []ConfusionPattern `json:"patterns"`
}
