package patterns

import (
	"context"

	"github.com/taskio/ticket-classifier/internal/models"
)

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error)

// FeedbackEntries implements Source.
func (f SourceFunc) FeedbackEntries(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error) {
	return f(ctx, limit)
}
