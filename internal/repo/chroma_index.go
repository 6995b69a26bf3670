package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskio/ticket-classifier/internal/models"
	"github.com/taskio/ticket-classifier/internal/utils"
)

// ChromaIndex stores ticket documents in a ChromaDB collection and retrieves
// the most similar prior tickets for RAG context. Embeddings are computed
// server-side by Chroma's default model, so the client only ships raw text.
type ChromaIndex struct {
	endpoint   string
	collection string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	collectionID string
}

// NewChromaIndex constructs an index client for the named collection. The
// collection is lazily get-or-created with a cosine HNSW space on first use.
func NewChromaIndex(endpoint, collection string, timeout time.Duration, logger *slog.Logger) *ChromaIndex {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if collection == "" {
		collection = "tickets"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromaIndex{
		endpoint:   strings.TrimRight(endpoint, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Upsert inserts or replaces the document for a ticket. Failures are
// returned so the caller can log them; classification never blocks on the
// index (eventual-consistency gap is acceptable).
func (x *ChromaIndex) Upsert(ctx context.Context, ticketID, text string, category models.Category) error {
	if x == nil || x.endpoint == "" {
		return fmt.Errorf("chroma index not configured")
	}

	collID, err := x.ensureCollection(ctx)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"ids":       []string{ticketID},
		"documents": []string{text},
		"metadatas": []map[string]any{{
			"category":   string(category),
			"created_at": time.Now().UTC().Format(time.RFC3339),
		}},
	}
	return x.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/upsert", x.endpoint, collID), payload, nil)
}

// QuerySimilar returns up to k prior tickets ordered by descending cosine
// similarity, ties broken by most recent insertion. An unreachable backend
// degrades to an empty result; callers proceed without RAG context.
func (x *ChromaIndex) QuerySimilar(ctx context.Context, text string, k int) ([]models.SimilarTicket, error) {
	if x == nil || x.endpoint == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 3
	}

	collID, err := x.ensureCollection(ctx)
	if err != nil {
		x.logger.Warn("similarity index unavailable, proceeding without context", slog.Any("error", err))
		return nil, nil
	}

	payload := map[string]any{
		"query_texts": []string{text},
		"n_results":   k,
		"include":     []string{"metadatas", "distances", "documents"},
	}

	var response struct {
		IDs       [][]string         `json:"ids"`
		Distances [][]float64        `json:"distances"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Documents [][]string         `json:"documents"`
	}
	if err := x.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/query", x.endpoint, collID), payload, &response); err != nil {
		x.logger.Warn("similarity query failed, proceeding without context", slog.Any("error", err))
		return nil, nil
	}
	if len(response.IDs) == 0 {
		return nil, nil
	}

	type scored struct {
		ticket    models.SimilarTicket
		createdAt time.Time
	}
	hits := make([]scored, 0, len(response.IDs[0]))
	for i, id := range response.IDs[0] {
		similarity := 0.0
		if len(response.Distances) > 0 && i < len(response.Distances[0]) {
			// Cosine distance: lower means closer.
			similarity = models.Clamp01(1 - response.Distances[0][i])
		}
		var category models.Category
		var createdAt time.Time
		if len(response.Metadatas) > 0 && i < len(response.Metadatas[0]) {
			meta := response.Metadatas[0][i]
			if raw, ok := meta["category"].(string); ok {
				if cat, valid := models.ParseCategory(raw); valid {
					category = cat
				}
			}
			if raw, ok := meta["created_at"].(string); ok {
				if ts, err := utils.ParseRFC3339(raw); err == nil {
					createdAt = ts
				}
			}
		}
		var excerpt string
		if len(response.Documents) > 0 && i < len(response.Documents[0]) {
			excerpt = response.Documents[0][i]
		}
		hits = append(hits, scored{
			ticket:    models.SimilarTicket{ID: id, Category: category, Similarity: similarity, Excerpt: excerpt},
			createdAt: createdAt,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].ticket.Similarity != hits[j].ticket.Similarity {
			return hits[i].ticket.Similarity > hits[j].ticket.Similarity
		}
		return hits[i].createdAt.After(hits[j].createdAt)
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]models.SimilarTicket, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.ticket)
	}
	return results, nil
}

// UpdateLabel rewrites the category metadata for an indexed ticket after a
// human correction. Idempotent: repeated corrections to the same value
// converge on the same metadata. The document is never re-embedded.
func (x *ChromaIndex) UpdateLabel(ctx context.Context, ticketID string, category models.Category) error {
	if x == nil || x.endpoint == "" {
		return fmt.Errorf("chroma index not configured")
	}

	collID, err := x.ensureCollection(ctx)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"ids":       []string{ticketID},
		"metadatas": []map[string]any{{"category": string(category)}},
	}
	return x.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/update", x.endpoint, collID), payload, nil)
}

// Count reports the number of indexed tickets, or zero when the backend is
// unreachable.
func (x *ChromaIndex) Count(ctx context.Context) int {
	if x == nil || x.endpoint == "" {
		return 0
	}
	collID, err := x.ensureCollection(ctx)
	if err != nil {
		return 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/collections/%s/count", x.endpoint, collID), nil)
	if err != nil {
		return 0
	}
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0
	}
	return count
}

// Healthy reports whether the index backend is reachable.
func (x *ChromaIndex) Healthy(ctx context.Context) bool {
	if x == nil || x.endpoint == "" {
		return false
	}
	_, err := x.ensureCollection(ctx)
	return err == nil
}

func (x *ChromaIndex) ensureCollection(ctx context.Context) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.collectionID != "" {
		return x.collectionID, nil
	}

	payload := map[string]any{
		"name":          x.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}

	var response struct {
		ID string `json:"id"`
	}
	if err := x.postJSON(ctx, x.endpoint+"/api/v1/collections", payload, &response); err != nil {
		return "", fmt.Errorf("get-or-create collection %s: %w", x.collection, err)
	}
	if response.ID == "" {
		return "", fmt.Errorf("collection %s: empty id in response", x.collection)
	}

	x.collectionID = response.ID
	return x.collectionID, nil
}

func (x *ChromaIndex) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
