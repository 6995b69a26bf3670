package patterns

import (
	"context"
	"log/slog"
	"sort"

	"github.com/taskio/ticket-classifier/internal/models"
)

// Source provides the feedback log the miner aggregates over.
type Source interface {
	FeedbackEntries(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error)
}

// Miner mines recurring label confusions from the correction feedback log.
// A confusion is an old-label to new-label transition where the human picked
// a different category than the classifier.
type Miner struct {
	source Source
	logger *slog.Logger
	window int
}

// NewMiner constructs a Miner reading up to window recent entries per run.
func NewMiner(logger *slog.Logger, source Source, window int) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 200
	}
	return &Miner{source: source, logger: logger, window: window}
}

// Mine aggregates the recent feedback log into confusion patterns, most
// frequent first. Confirmations (old label equals new label) and entries
// without a prior prediction count toward the total but produce no pattern.
func (m *Miner) Mine(ctx context.Context) (models.CorrectionsReport, error) {
	entries, err := m.source.FeedbackEntries(ctx, m.window)
	if err != nil {
		return models.CorrectionsReport{}, err
	}

	report := models.CorrectionsReport{
		TotalCorrections: len(entries),
		Patterns:         []models.ConfusionPattern{},
	}
	if len(entries) == 0 {
		return report, nil
	}

	type transition struct {
		from, to models.Category
	}
	aggregates := make(map[transition]*models.ConfusionPattern)
	for _, entry := range entries {
		if entry.OldLabel == "" || entry.OldLabel == entry.NewLabel {
			continue
		}
		key := transition{from: entry.OldLabel, to: entry.NewLabel}
		pattern, ok := aggregates[key]
		if !ok {
			pattern = &models.ConfusionPattern{From: entry.OldLabel, To: entry.NewLabel}
			aggregates[key] = pattern
		}
		pattern.Count++
		if entry.CreatedAt.After(pattern.LastSeen) {
			pattern.LastSeen = entry.CreatedAt
		}
	}

	for _, pattern := range aggregates {
		pattern.Share = float64(pattern.Count) / float64(len(entries))
		report.Patterns = append(report.Patterns, *pattern)
	}
	sort.Slice(report.Patterns, func(i, j int) bool {
		if report.Patterns[i].Count != report.Patterns[j].Count {
			return report.Patterns[i].Count > report.Patterns[j].Count
		}
		return report.Patterns[i].LastSeen.After(report.Patterns[j].LastSeen)
	})

	return report, nil
}
