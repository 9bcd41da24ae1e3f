package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/marcusb/corpusd/internal/domain"
	"github.com/marcusb/corpusd/internal/logger"
	"github.com/marcusb/corpusd/internal/prompts"
)

// SimilarityConfig bounds the search behavior.
type SimilarityConfig struct {
	DefaultLimit    int // result size when the caller passes none
	RerankThreshold int // minimum LLM relevance score kept by the rerank pass
}

// Match pairs a record with its cosine similarity to the target.
type Match struct {
	Record     domain.DataRecord `json:"record"`
	Similarity float64           `json:"similarity"`
}

// RankedMatch is a Match after the optional LLM re-rank pass. Relevance is
// the judge's 0-100 score; zero with an empty reason means the rerank was
// skipped or fell back.
type RankedMatch struct {
	Match
	Relevance int    `json:"relevance,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SimilarityService ranks records of the same project and type against a
// target record by embedding cosine similarity, with an optional LLM
// critical re-rank on top.
type SimilarityService struct {
	records   RecordStore
	completer CompletionProvider
	cfg       SimilarityConfig
}

// NewSimilarityService creates a new SimilarityService.
// Parameters:
//   - records: record persistence.
//   - completer: model gateway completion provider for the rerank pass.
//   - cfg: search bounds; zero values fall back to safe defaults.
// Returns:
//   - *SimilarityService: initialized service.
func NewSimilarityService(records RecordStore, completer CompletionProvider, cfg SimilarityConfig) *SimilarityService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.RerankThreshold <= 0 {
		cfg.RerankThreshold = 60
	}
	return &SimilarityService{records: records, completer: completer, cfg: cfg}
}

// FindSimilar returns the limit most similar records to the target, ranked
// by cosine similarity. The candidate pool is scoped to the target's project
// and type; the scan runs over an id+embedding projection and only the
// winners are hydrated to full records.
func (s *SimilarityService) FindSimilar(ctx context.Context, targetID string, limit int) ([]Match, error) {
	if targetID == "" {
		return nil, fmt.Errorf("%w: target record id is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	target, err := s.records.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !target.HasEmbedding() {
		return nil, fmt.Errorf("record %s: %w", targetID, domain.ErrNoEmbedding)
	}

	candidates, err := s.records.ListEmbeddings(ctx, target.ProjectID, target.Type, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate embeddings: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		scores = append(scores, scored{id: c.ID, score: CosineSimilarity(target.Embedding, c.Embedding)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if len(scores) > limit {
		scores = scores[:limit]
	}

	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = s.id
	}
	full, err := s.records.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.DataRecord, len(full))
	for _, r := range full {
		byID[r.ID] = r
	}

	matches := make([]Match, 0, len(scores))
	for _, sc := range scores {
		record, ok := byID[sc.id]
		if !ok {
			continue
		}
		matches = append(matches, Match{Record: record, Similarity: sc.score})
	}
	return matches, nil
}

// rerankVerdict is one entry of the judge's JSON response.
type rerankVerdict struct {
	ID     string `json:"id"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Search runs the two-stage search: a vector pass over twice the requested
// limit, then an LLM re-rank that scores each candidate 0-100 and drops
// everything under the threshold. Any rerank failure falls back to the raw
// vector ranking; the rerank is an enhancement, never a hard dependency.
// The ranked result is cached on the target record; force bypasses and
// refreshes the cache.
func (s *SimilarityService) Search(ctx context.Context, targetID string, limit int, force bool) ([]RankedMatch, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	target, err := s.records.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.SimilarityAnalysis != nil && !force {
		var cached []RankedMatch
		if err := json.Unmarshal([]byte(*target.SimilarityAnalysis), &cached); err == nil {
			return cached, nil
		}
		// Unreadable snapshot: recompute and overwrite.
	}

	pool, err := s.FindSimilar(ctx, targetID, 2*limit)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return []RankedMatch{}, nil
	}

	ranked, err := s.rerank(ctx, target.Content, pool, limit)
	if err != nil {
		logger.CtxWarn(ctx, "rerank failed, falling back to vector ranking: %v", err)
		ranked = fallbackRanking(pool, limit)
	}

	if snapshot, err := json.Marshal(ranked); err == nil {
		if err := s.records.SaveSimilarity(ctx, targetID, string(snapshot)); err != nil {
			logger.CtxWarn(ctx, "failed to cache similarity snapshot: %v", err)
		}
	}
	return ranked, nil
}

// rerank asks the gateway to judge the pool and keeps candidates at or above
// the threshold, best first, truncated to limit.
func (s *SimilarityService) rerank(ctx context.Context, targetContent string, pool []Match, limit int) ([]RankedMatch, error) {
	candidates := make([]prompts.RerankCandidate, len(pool))
	byID := make(map[string]Match, len(pool))
	for i, m := range pool {
		candidates[i] = prompts.RerankCandidate{ID: m.Record.ID, Content: m.Record.Content}
		byID[m.Record.ID] = m
	}

	response, err := s.completer.Complete(ctx, prompts.RerankUser(targetContent, candidates), prompts.RerankSystem)
	if err != nil {
		return nil, fmt.Errorf("rerank completion failed: %w", err)
	}

	verdicts, err := parseRerankResponse(response)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedMatch, 0, len(verdicts))
	for _, v := range verdicts {
		match, ok := byID[v.ID]
		if !ok || v.Score < s.cfg.RerankThreshold {
			continue
		}
		ranked = append(ranked, RankedMatch{Match: match, Relevance: v.Score, Reason: v.Reason})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Relevance > ranked[j].Relevance })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// parseRerankResponse extracts the JSON verdict array, tolerating code
// fences and prose around it.
func parseRerankResponse(response string) ([]rerankVerdict, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in rerank response")
	}
	var verdicts []rerankVerdict
	if err := json.Unmarshal([]byte(response[start:end+1]), &verdicts); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(verdicts) == 0 {
		return nil, fmt.Errorf("rerank response scored no candidates")
	}
	return verdicts, nil
}

func fallbackRanking(pool []Match, limit int) []RankedMatch {
	if len(pool) > limit {
		pool = pool[:limit]
	}
	ranked := make([]RankedMatch, len(pool))
	for i, m := range pool {
		ranked[i] = RankedMatch{Match: m}
	}
	return ranked
}

// CosineSimilarity computes the normalized dot product of two vectors.
// Mismatched lengths or a zero-magnitude vector yield 0 by convention.
func CosineSimilarity(a, b domain.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
