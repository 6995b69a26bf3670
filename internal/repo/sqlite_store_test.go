package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/taskio/ticket-classifier/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ticket, err := store.InsertTicket(ctx, fmt.Sprintf("ticket %d", n), "concurrent insert for pool coverage", models.ClassificationResult{
				Category:   models.CategoryGeneral,
				Confidence: 0.5,
			})
			if err != nil {
				errs <- fmt.Errorf("insert: %w", err)
				return
			}
			if _, err := store.GetTicket(ctx, ticket.ID); err != nil {
				errs <- fmt.Errorf("get: %w", err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent access: %v", err)
	}
}

func TestInsertAndGetTicket(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result := models.ClassificationResult{
		Category:   models.CategoryNetwork,
		Confidence: 0.85,
		Reasoning:  "connectivity symptoms",
	}
	ticket, err := store.InsertTicket(ctx, "WiFi drops", "My wifi disconnects every few minutes", result)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ticket.ID == "" {
		t.Fatalf("expected generated id")
	}
	if ticket.Status != models.StatusClassified {
		t.Fatalf("expected classified status, got %s", ticket.Status)
	}

	got, err := store.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PredictedCategory != models.CategoryNetwork || got.ConfidenceScore != 0.85 {
		t.Fatalf("unexpected ticket: %+v", got)
	}
	if got.ActualCategory != "" {
		t.Fatalf("fresh ticket must have no actual category")
	}
}

func TestInsertTicketDefaultsTitle(t *testing.T) {
	store := newTestStore(t)

	ticket, err := store.InsertTicket(context.Background(), "  ", "The camera app crashes on launch every time", models.ClassificationResult{Category: models.CategorySoftware})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ticket.Title == "" {
		t.Fatalf("expected title defaulted from description")
	}
}

func TestInsertTicketWithoutPredictionStaysOpen(t *testing.T) {
	store := newTestStore(t)

	ticket, err := store.InsertTicket(context.Background(), "Question", "How do I export my data from the app", models.ClassificationResult{})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ticket.Status != models.StatusOpen {
		t.Fatalf("expected open status, got %s", ticket.Status)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTicket(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTicketsFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.InsertTicket(ctx, "net", "wifi keeps disconnecting from the router", models.ClassificationResult{Category: models.CategoryNetwork, Confidence: 0.8}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := store.InsertTicket(ctx, "batt", "battery drains overnight while idle", models.ClassificationResult{Category: models.CategoryBattery, Confidence: 0.7}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	resp, err := store.ListTickets(ctx, models.ListTicketsRequest{Category: models.CategoryNetwork, Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp.Total != 3 || len(resp.Tickets) != 2 || resp.Pages != 2 {
		t.Fatalf("unexpected page: total=%d len=%d pages=%d", resp.Total, len(resp.Tickets), resp.Pages)
	}
	for _, ticket := range resp.Tickets {
		if ticket.PredictedCategory != models.CategoryNetwork {
			t.Fatalf("filter leaked ticket: %+v", ticket)
		}
	}

	all, err := store.ListTickets(ctx, models.ListTicketsRequest{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 4 || all.Page != 1 || all.Limit != 20 {
		t.Fatalf("unexpected defaults: %+v", all)
	}
}

func TestCorrectTicketUpdatesAndLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ticket, err := store.InsertTicket(ctx, "slow phone", "phone is slow after the last update", models.ClassificationResult{Category: models.CategoryProduct, Confidence: 0.6})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	corrected, err := store.CorrectTicket(ctx, ticket.ID, models.CategorySoftware, "it is the OS update, not hardware")
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if corrected.ActualCategory != models.CategorySoftware {
		t.Fatalf("expected actual category set, got %+v", corrected)
	}
	if corrected.Status != models.StatusCorrected {
		t.Fatalf("expected corrected status, got %s", corrected.Status)
	}
	if corrected.PredictedCategory != models.CategoryProduct {
		t.Fatalf("prediction must be preserved, got %+v", corrected)
	}

	entries, err := store.FeedbackEntries(ctx, 10)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one feedback entry, got %d", len(entries))
	}
	if entries[0].OldLabel != models.CategoryProduct || entries[0].NewLabel != models.CategorySoftware {
		t.Fatalf("unexpected labels: %+v", entries[0])
	}
	if entries[0].TicketID != ticket.ID {
		t.Fatalf("unexpected ticket id: %s", entries[0].TicketID)
	}
}

func TestCorrectTicketRepeatedly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ticket, err := store.InsertTicket(ctx, "", "screen flickers when brightness is low", models.ClassificationResult{Category: models.CategorySoftware, Confidence: 0.55})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := store.CorrectTicket(ctx, ticket.ID, models.CategoryProduct, ""); err != nil {
		t.Fatalf("first correction: %v", err)
	}
	final, err := store.CorrectTicket(ctx, ticket.ID, models.CategorySoftware, "actually firmware")
	if err != nil {
		t.Fatalf("second correction: %v", err)
	}
	if final.ActualCategory != models.CategorySoftware {
		t.Fatalf("last correction must win, got %s", final.ActualCategory)
	}

	entries, err := store.FeedbackEntries(ctx, 10)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("every correction must append a log entry, got %d", len(entries))
	}
}

func TestCorrectTicketNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CorrectTicket(context.Background(), "missing", models.CategoryGeneral, "")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyticsAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.InsertTicket(ctx, "", "wifi drops constantly in the evening", models.ClassificationResult{Category: models.CategoryNetwork, Confidence: 0.9})
	b, _ := store.InsertTicket(ctx, "", "battery dies within two hours of use", models.ClassificationResult{Category: models.CategoryBattery, Confidence: 0.7})
	if _, err := store.InsertTicket(ctx, "", "how do i change my notification sound", models.ClassificationResult{Category: models.CategoryGeneral, Confidence: 0.5}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// One confirmed-correct, one corrected-away.
	if _, err := store.CorrectTicket(ctx, a.ID, models.CategoryNetwork, ""); err != nil {
		t.Fatalf("correct a: %v", err)
	}
	if _, err := store.CorrectTicket(ctx, b.ID, models.CategoryProduct, ""); err != nil {
		t.Fatalf("correct b: %v", err)
	}

	overview, err := store.Analytics(ctx)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if overview.TotalTickets != 3 {
		t.Fatalf("expected 3 tickets, got %d", overview.TotalTickets)
	}
	if overview.Accuracy.TotalReviewed != 2 || overview.Accuracy.CorrectPredictions != 1 {
		t.Fatalf("unexpected accuracy: %+v", overview.Accuracy)
	}
	if overview.Accuracy.AccuracyPercent != 50 {
		t.Fatalf("expected 50%% accuracy, got %f", overview.Accuracy.AccuracyPercent)
	}
	if len(overview.CategoryDistribution) != 3 {
		t.Fatalf("expected 3 categories, got %+v", overview.CategoryDistribution)
	}
	if overview.AvgConfidence < 0.69 || overview.AvgConfidence > 0.71 {
		t.Fatalf("unexpected avg confidence: %f", overview.AvgConfidence)
	}
}

func TestHealthy(t *testing.T) {
	store := newTestStore(t)
	if !store.Healthy(context.Background()) {
		t.Fatalf("expected healthy store")
	}
}
