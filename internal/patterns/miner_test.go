package patterns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskio/ticket-classifier/internal/models"
)

func TestMinerAggregatesConfusions(t *testing.T) {
	now := time.Now()
	source := SourceFunc(func(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error) {
		return []models.FeedbackLogEntry{
			{OldLabel: models.CategoryProduct, NewLabel: models.CategorySoftware, CreatedAt: now},
			{OldLabel: models.CategoryProduct, NewLabel: models.CategorySoftware, CreatedAt: now.Add(-time.Hour)},
			{OldLabel: models.CategoryNetwork, NewLabel: models.CategoryBattery, CreatedAt: now.Add(-2 * time.Hour)},
			// Confirmation: human agreed with the prediction.
			{OldLabel: models.CategoryGeneral, NewLabel: models.CategoryGeneral, CreatedAt: now},
		}, nil
	})
	miner := NewMiner(nil, source, 100)

	report, err := miner.Mine(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalCorrections != 4 {
		t.Fatalf("expected 4 total entries, got %d", report.TotalCorrections)
	}
	if len(report.Patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %+v", report.Patterns)
	}
	top := report.Patterns[0]
	if top.From != models.CategoryProduct || top.To != models.CategorySoftware || top.Count != 2 {
		t.Fatalf("unexpected top pattern: %+v", top)
	}
	if top.Share != 0.5 {
		t.Fatalf("expected share 0.5, got %f", top.Share)
	}
	if !top.LastSeen.Equal(now) {
		t.Fatalf("expected most recent timestamp, got %v", top.LastSeen)
	}
}

func TestMinerEmptyLog(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error) {
		return nil, nil
	})
	miner := NewMiner(nil, source, 100)

	report, err := miner.Mine(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalCorrections != 0 || len(report.Patterns) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestMinerPropagatesSourceError(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error) {
		return nil, errors.New("db down")
	})
	miner := NewMiner(nil, source, 100)

	if _, err := miner.Mine(context.Background()); err == nil {
		t.Fatalf("expected source error to propagate")
	}
}

func TestMinerWindowPassedToSource(t *testing.T) {
	var gotLimit int
	source := SourceFunc(func(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error) {
		gotLimit = limit
		return nil, nil
	})
	miner := NewMiner(nil, source, 0)

	if _, err := miner.Mine(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 200 {
		t.Fatalf("expected default window 200, got %d", gotLimit)
	}
}
