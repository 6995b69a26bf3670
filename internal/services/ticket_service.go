package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/taskio/ticket-classifier/internal/cache"
	"github.com/taskio/ticket-classifier/internal/engine"
	"github.com/taskio/ticket-classifier/internal/metrics"
	"github.com/taskio/ticket-classifier/internal/models"
	"github.com/taskio/ticket-classifier/internal/patterns"
	"github.com/taskio/ticket-classifier/internal/utils"
)

// TicketStore defines the relational operations the service depends on.
type TicketStore interface {
	InsertTicket(ctx context.Context, title, description string, result models.ClassificationResult) (models.Ticket, error)
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	ListTickets(ctx context.Context, req models.ListTicketsRequest) (models.ListTicketsResponse, error)
	CorrectTicket(ctx context.Context, id string, category models.Category, feedback string) (models.Ticket, error)
	Analytics(ctx context.Context) (models.AnalyticsOverview, error)
	Healthy(ctx context.Context) bool
}

// SimilarityIndex defines the vector index operations the service depends on.
type SimilarityIndex interface {
	Upsert(ctx context.Context, ticketID, text string, category models.Category) error
	UpdateLabel(ctx context.Context, ticketID string, category models.Category) error
	Count(ctx context.Context) int
	Healthy(ctx context.Context) bool
}

// TicketService is the application facade behind the HTTP handlers. It owns
// the persist-and-index sequencing around the classification pipeline.
type TicketService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	store     TicketStore
	index     SimilarityIndex
	results   *cache.ResultCache
	miner     *patterns.Miner
	latencies *utils.LatencyTracker
}

// NewTicketService constructs the service facade. index, results, and miner
// may be nil; the corresponding side effects are skipped.
func NewTicketService(logger *slog.Logger, pipeline *engine.Pipeline, store TicketStore, index SimilarityIndex, results *cache.ResultCache, miner *patterns.Miner) *TicketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketService{
		logger:    logger,
		pipeline:  pipeline,
		store:     store,
		index:     index,
		results:   results,
		miner:     miner,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// CreateAndClassify validates the request, classifies the ticket, persists
// it, and indexes it for future retrieval. Index failures are logged, never
// surfaced; the classification happened before the ticket existed, so the
// ticket never retrieves itself.
func (s *TicketService) CreateAndClassify(ctx context.Context, req models.CreateTicketRequest) (models.TicketWithClassification, error) {
	if err := req.Validate(); err != nil {
		return models.TicketWithClassification{}, err
	}

	// The title is defaulted here, not at insert time: the cache fingerprint,
	// the stored row, and the indexed document must all derive from the same
	// text, or a later correction invalidates the wrong cache key.
	title := defaultTitle(req.Title, req.Description)

	start := time.Now()
	result := s.pipeline.Classify(ctx, title, req.Description, engine.Options{UseCache: true, UseRAG: true})

	ticket, err := s.store.InsertTicket(ctx, title, req.Description, result)
	if err != nil {
		s.logger.Error("ticket insert failed", slog.Any("error", err))
		return models.TicketWithClassification{}, err
	}

	if s.index != nil {
		if err := s.index.Upsert(ctx, ticket.ID, fullText(ticket.Title, ticket.Description), result.Category); err != nil {
			s.logger.Warn("ticket indexing failed", slog.String("ticket_id", ticket.ID), slog.Any("error", err))
		}
	}

	duration := time.Since(start)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("classification latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return models.TicketWithClassification{Ticket: ticket, Classification: result}, nil
}

// ClassifyOnly previews a classification without persisting or indexing the
// ticket. The cache is bypassed so the caller always sees a fresh result.
func (s *TicketService) ClassifyOnly(ctx context.Context, req models.CreateTicketRequest) (models.ClassificationResult, error) {
	if err := req.Validate(); err != nil {
		return models.ClassificationResult{}, err
	}
	return s.pipeline.Classify(ctx, req.Title, req.Description, engine.Options{UseCache: false, UseRAG: true}), nil
}

// Get returns a single ticket by id.
func (s *TicketService) Get(ctx context.Context, id string) (models.Ticket, error) {
	return s.store.GetTicket(ctx, id)
}

// List returns a filtered page of tickets.
func (s *TicketService) List(ctx context.Context, req models.ListTicketsRequest) (models.ListTicketsResponse, error) {
	return s.store.ListTickets(ctx, req)
}

// Categories returns the closed category set.
func (s *TicketService) Categories() []models.Category {
	return models.Categories()
}

// Correct applies a human correction: the store transaction updates the
// ticket and appends the feedback log, then the index metadata and the
// result cache are updated best-effort.
func (s *TicketService) Correct(ctx context.Context, id string, req models.CorrectionRequest) (models.Ticket, error) {
	category, ok := models.ParseCategory(req.CorrectedCategory)
	if !ok {
		return models.Ticket{}, models.ErrInvalidCategory
	}

	ticket, err := s.store.CorrectTicket(ctx, id, category, req.Feedback)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("correction failed", slog.String("ticket_id", id), slog.Any("error", err))
		}
		return models.Ticket{}, err
	}
	metrics.ObserveCorrection()

	if s.index != nil {
		if err := s.index.UpdateLabel(ctx, id, category); err != nil {
			s.logger.Warn("index label update failed", slog.String("ticket_id", id), slog.Any("error", err))
		}
	}
	if s.results != nil {
		// A resubmission of the same text must not replay the stale
		// prediction.
		s.results.Invalidate(ctx, ticket.Title, ticket.Description)
	}

	return ticket, nil
}

// AnalyticsOverview aggregates store counters with the index size.
func (s *TicketService) AnalyticsOverview(ctx context.Context) (models.AnalyticsOverview, error) {
	overview, err := s.store.Analytics(ctx)
	if err != nil {
		return models.AnalyticsOverview{}, err
	}
	if s.index != nil {
		overview.IndexedTickets = s.index.Count(ctx)
	}
	return overview, nil
}

// Corrections returns mined confusion patterns from the feedback log.
func (s *TicketService) Corrections(ctx context.Context) (models.CorrectionsReport, error) {
	if s.miner == nil {
		return models.CorrectionsReport{Patterns: []models.ConfusionPattern{}}, nil
	}
	return s.miner.Mine(ctx)
}

// Health reports per-dependency health for the liveness endpoint.
func (s *TicketService) Health(ctx context.Context) map[string]bool {
	health := map[string]bool{
		"store": s.store.Healthy(ctx),
	}
	if s.index != nil {
		health["index"] = s.index.Healthy(ctx)
	}
	return health
}

// LatencyP95 returns the current p95 end-to-end classification latency.
func (s *TicketService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func fullText(title, description string) string {
	if title != "" {
		return title + ". " + description
	}
	return description
}

func defaultTitle(title, description string) string {
	if strings.TrimSpace(title) != "" {
		return title
	}
	if len(description) > 100 {
		return description[:100]
	}
	return description
}
