package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskio/ticket-classifier/internal/metrics"
	"github.com/taskio/ticket-classifier/internal/models"
)

// Classifier produces a structured classification for a ticket, optionally
// conditioned on similar prior tickets.
type Classifier interface {
	Classify(ctx context.Context, title, description string, similar []models.SimilarTicket) (models.ClassificationResult, error)
}

// SimilarityIndex retrieves the most similar prior tickets for RAG context.
type SimilarityIndex interface {
	QuerySimilar(ctx context.Context, text string, k int) ([]models.SimilarTicket, error)
}

// ResultCache stores and retrieves classification snapshots keyed by ticket
// text.
type ResultCache interface {
	Lookup(ctx context.Context, title, description string) (models.ClassificationResult, bool)
	Store(ctx context.Context, title, description string, result models.ClassificationResult)
}

// Options control per-call pipeline behaviour.
type Options struct {
	// UseCache enables the fingerprint cache check and write-through.
	UseCache bool
	// UseRAG enables similarity retrieval for prompt context.
	UseRAG bool
}

// Pipeline orchestrates a single classification: cache check, similarity
// retrieval, model completion, and keyword fallback. It never persists
// tickets; that is the caller's concern.
type Pipeline struct {
	logger     *slog.Logger
	cache      ResultCache
	index      SimilarityIndex
	classifier Classifier
	fallback   *KeywordClassifier
	topK       int
}

// NewPipeline constructs a classification pipeline. cache and index may be
// nil; those stages are then skipped. classifier may be nil, in which case
// every request takes the keyword fallback path.
func NewPipeline(logger *slog.Logger, cache ResultCache, index SimilarityIndex, classifier Classifier, fallback *KeywordClassifier, topK int) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		fallback, _ = NewKeywordClassifier("", logger)
	}
	if topK <= 0 {
		topK = 3
	}
	return &Pipeline{
		logger:     logger,
		cache:      cache,
		index:      index,
		classifier: classifier,
		fallback:   fallback,
		topK:       topK,
	}
}

// Classify runs the full pipeline for one ticket. The returned result always
// carries a valid category; model failures degrade to keyword matching and
// are never surfaced to the caller.
func (p *Pipeline) Classify(ctx context.Context, title, description string, opts Options) models.ClassificationResult {
	start := time.Now()

	if opts.UseCache && p.cache != nil {
		if result, ok := p.cache.Lookup(ctx, title, description); ok {
			result.LatencyMs = elapsedMs(start)
			metrics.ObserveClassification(time.Since(start), metrics.OutcomeCached)
			return result
		}
	}

	var similar []models.SimilarTicket
	if opts.UseRAG && p.index != nil {
		retrieved, err := p.index.QuerySimilar(ctx, fullText(title, description), p.topK)
		if err != nil {
			p.logger.Warn("similarity retrieval failed, proceeding without context", slog.Any("error", err))
		} else {
			similar = retrieved
		}
	}

	result, err := p.complete(ctx, title, description, similar)
	outcome := metrics.OutcomeModel
	if err != nil {
		p.logger.Warn("model classification failed, using keyword fallback", slog.Any("error", err))
		result = p.fallback.Classify(title, description)
		result.SimilarTickets = []models.SimilarTicket{}
		result.RAGUsed = false
		outcome = metrics.OutcomeFallback
	} else if opts.UseCache && p.cache != nil {
		// Fallback results are never cached; only model output is worth
		// replaying.
		p.cache.Store(ctx, title, description, result)
	}

	result.Cached = false
	result.LatencyMs = elapsedMs(start)
	metrics.ObserveClassification(time.Since(start), outcome)
	return result
}

func (p *Pipeline) complete(ctx context.Context, title, description string, similar []models.SimilarTicket) (models.ClassificationResult, error) {
	if p.classifier == nil {
		return models.ClassificationResult{}, fmt.Errorf("classifier not configured")
	}
	result, err := p.classifier.Classify(ctx, title, description, similar)
	if err != nil {
		return models.ClassificationResult{}, err
	}

	result.SimilarTickets = make([]models.SimilarTicket, 0, len(similar))
	for _, s := range similar {
		result.SimilarTickets = append(result.SimilarTickets, models.SimilarTicket{
			ID:         s.ID,
			Category:   s.Category,
			Similarity: s.Similarity,
		})
	}
	result.RAGUsed = len(similar) > 0
	return result, nil
}

func fullText(title, description string) string {
	if t := title; t != "" {
		return t + ". " + description
	}
	return description
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
