package service

import (
	"context"
	"fmt"
	"time"

	"github.com/marcusb/corpusd/internal/domain"
	"github.com/marcusb/corpusd/internal/logger"
)

// VectorizerConfig bounds the embedding loop.
type VectorizerConfig struct {
	BatchSize    int           // records embedded per gateway call
	MaxFailures  int           // consecutive batch failures before the job fails
	RetryBackoff time.Duration // wait between failed batches
}

// Vectorizer drives the embedding phase of an ingest job: it repeatedly
// selects records lacking an embedding, requests vectors in batches, and
// persists successes. Records whose vector comes back empty are quarantined
// in memory so they cannot be reselected within the run; repeated
// whole-batch failures fail the job as a gateway outage.
type Vectorizer struct {
	records  RecordStore
	jobs     IngestJobStore
	embedder EmbeddingProvider
	cfg      VectorizerConfig
}

// NewVectorizer creates a new Vectorizer.
// Parameters:
//   - records: record persistence.
//   - jobs: ingest job persistence for progress and status.
//   - embedder: model gateway embedding provider.
//   - cfg: loop bounds; zero values fall back to safe defaults.
// Returns:
//   - *Vectorizer: initialized worker.
func NewVectorizer(records RecordStore, jobs IngestJobStore, embedder EmbeddingProvider, cfg VectorizerConfig) *Vectorizer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	return &Vectorizer{records: records, jobs: jobs, embedder: embedder, cfg: cfg}
}

// Run embeds every record of the project that lacks an embedding, tracking
// progress on the ingest job. It returns with the job already transitioned
// to FAILED when the gateway is deemed down; the caller must not overwrite
// that terminal state.
func (v *Vectorizer) Run(ctx context.Context, jobID, projectID string) error {
	total, err := v.records.CountMissingEmbeddings(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to count records needing embeddings: %w", err)
	}
	if err := v.jobs.ResetForVectorizing(ctx, jobID, int(total)); err != nil {
		return fmt.Errorf("failed to enter vectorizing phase: %w", err)
	}

	// Quarantined ids are excluded from every later selection; without this
	// a permanently failing record would be refetched forever.
	quarantined := make(map[string]struct{})
	var excludeIDs []string

	processed := 0
	consecutiveFailures := 0

	for {
		status, err := v.jobs.GetStatus(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to check job status: %w", err)
		}
		if status == domain.IngestStatusCancelled {
			logger.CtxInfo(ctx, "vectorization cancelled after %d records", processed)
			return nil
		}

		batch, err := v.records.ListMissingEmbeddings(ctx, projectID, v.cfg.BatchSize, excludeIDs)
		if err != nil {
			return fmt.Errorf("failed to select records for embedding: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		texts := make([]string, len(batch))
		for i, record := range batch {
			texts[i] = record.Content
		}

		embeddings, err := v.embedder.EmbedBatch(ctx, texts)
		if err == nil && allEmpty(embeddings) {
			err = fmt.Errorf("embedding batch returned no vectors")
		}
		if err != nil {
			consecutiveFailures++
			logger.CtxWarn(ctx, "embedding batch failed (attempt %d/%d): %v",
				consecutiveFailures, v.cfg.MaxFailures, err)
			if consecutiveFailures >= v.cfg.MaxFailures {
				message := fmt.Sprintf("Embedding generation failed after %d consecutive attempts: %v. Check AI provider connection.",
					v.cfg.MaxFailures, err)
				if err := v.jobs.MarkFailed(ctx, jobID, message); err != nil {
					return fmt.Errorf("failed to mark job failed: %w", err)
				}
				return nil
			}
			if err := sleepCtx(ctx, v.cfg.RetryBackoff); err != nil {
				return err
			}
			continue
		}
		consecutiveFailures = 0

		var updates []domain.EmbeddingUpdate
		for i, record := range batch {
			if i < len(embeddings) && len(embeddings[i]) > 0 {
				updates = append(updates, domain.EmbeddingUpdate{ID: record.ID, Embedding: embeddings[i]})
				continue
			}
			if _, ok := quarantined[record.ID]; !ok {
				quarantined[record.ID] = struct{}{}
				excludeIDs = append(excludeIDs, record.ID)
			}
		}

		if err := v.records.SaveEmbeddings(ctx, updates); err != nil {
			return fmt.Errorf("failed to persist embeddings: %w", err)
		}
		processed += len(updates)
		if err := v.jobs.UpdateSavedCount(ctx, jobID, processed); err != nil {
			return fmt.Errorf("failed to update vectorization progress: %w", err)
		}
	}

	if len(quarantined) > 0 {
		logger.CtxWarn(ctx, "vectorization finished with %d records that could not be embedded", len(quarantined))
	}
	return nil
}

func allEmpty(embeddings []domain.Vector) bool {
	for _, e := range embeddings {
		if len(e) > 0 {
			return false
		}
	}
	return true
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
