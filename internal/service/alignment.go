package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/marcusb/corpusd/internal/domain"
	"github.com/marcusb/corpusd/internal/logger"
	"github.com/marcusb/corpusd/internal/prompts"
)

// AlignmentService grades records against a project's guidelines document
// through the model gateway, either one record at a time (Compare) or as a
// single-flight background job over every unscored record in the project.
type AlignmentService struct {
	records   RecordStore
	jobs      AnalyticsJobStore
	projects  ProjectStore
	completer CompletionProvider
	extractor TextExtractor

	startMu sync.Mutex // serializes the active-check-then-create window
}

// NewAlignmentService creates a new AlignmentService.
// Parameters:
//   - records: record persistence.
//   - jobs: analytics job persistence.
//   - projects: project lookups for the guidelines document.
//   - completer: model gateway completion provider.
//   - extractor: guidelines text extractor.
// Returns:
//   - *AlignmentService: initialized service.
func NewAlignmentService(
	records RecordStore,
	jobs AnalyticsJobStore,
	projects ProjectStore,
	completer CompletionProvider,
	extractor TextExtractor,
) *AlignmentService {
	return &AlignmentService{
		records:   records,
		jobs:      jobs,
		projects:  projects,
		completer: completer,
		extractor: extractor,
	}
}

// StartBulkAlignment starts a background job grading every record of the
// project that lacks an alignment verdict. Returns the running job's id when
// one is already active (single-flight), or "" when nothing needs grading.
func (s *AlignmentService) StartBulkAlignment(ctx context.Context, projectID string) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}

	// Two concurrent starts must not both pass the active-job check and
	// create a second PROCESSING job for the project.
	s.startMu.Lock()
	defer s.startMu.Unlock()

	active, err := s.jobs.ActiveForProject(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("failed to check active alignment job: %w", err)
	}
	if active != nil {
		return active.ID, nil
	}

	pending, err := s.records.CountMissingAlignment(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("failed to count unscored records: %w", err)
	}
	if pending == 0 {
		return "", nil
	}

	job := &domain.AnalyticsJob{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Status:       domain.AnalyticsStatusProcessing,
		TotalRecords: int(pending),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create alignment job: %w", err)
	}

	bg := logger.FromContext(ctx).
		WithField(logger.FieldProjectID, projectID).
		WithField(logger.FieldJobID, job.ID).
		WithContext(context.Background())
	go s.run(bg, job.ID, projectID)

	return job.ID, nil
}

// run is the background worker: one gateway call per record, verdicts
// persisted immediately, progress updated after every record. A per-record
// failure is logged and skipped; a project-level failure (missing or
// unreadable guidelines) fails the whole job.
func (s *AlignmentService) run(ctx context.Context, jobID, projectID string) {
	guidelines, projectName, err := s.loadGuidelines(ctx, projectID)
	if err != nil {
		logger.CtxError(ctx, "bulk alignment failed: %v", err)
		if ferr := s.jobs.MarkFailed(ctx, jobID, err.Error()); ferr != nil {
			logger.CtxError(ctx, "failed to record job failure: %v", ferr)
		}
		return
	}

	targets, err := s.records.ListMissingAlignment(ctx, projectID)
	if err != nil {
		logger.CtxError(ctx, "bulk alignment failed: %v", err)
		if ferr := s.jobs.MarkFailed(ctx, jobID, err.Error()); ferr != nil {
			logger.CtxError(ctx, "failed to record job failure: %v", ferr)
		}
		return
	}

	systemPrompt := prompts.AlignmentSystem(projectName)

	for i, record := range targets {
		status, err := s.jobs.GetStatus(ctx, jobID)
		if err != nil {
			logger.CtxError(ctx, "failed to check job status: %v", err)
			return
		}
		if status == domain.AnalyticsStatusCancelled {
			logger.CtxInfo(ctx, "bulk alignment cancelled after %d records", i)
			return
		}

		verdict, err := s.completer.Complete(ctx, prompts.AlignmentUser(guidelines, record.Content), systemPrompt)
		if err != nil {
			logger.CtxWarn(ctx, "failed to grade record %s, skipping: %v", record.ID, err)
		} else if err := s.records.SaveAlignment(ctx, record.ID, verdict); err != nil {
			logger.CtxError(ctx, "failed to persist verdict for record %s: %v", record.ID, err)
		}

		if err := s.jobs.UpdateProcessed(ctx, jobID, i+1); err != nil {
			logger.CtxError(ctx, "failed to update job progress: %v", err)
		}
	}

	// A CANCELLED flag raised during the last record must survive.
	status, err := s.jobs.GetStatus(ctx, jobID)
	if err != nil {
		logger.CtxError(ctx, "failed to read final job status: %v", err)
		return
	}
	if status != domain.AnalyticsStatusCancelled {
		if err := s.jobs.SetStatus(ctx, jobID, domain.AnalyticsStatusCompleted); err != nil {
			logger.CtxError(ctx, "failed to complete job: %v", err)
			return
		}
	}
	logger.CtxInfo(ctx, "bulk alignment finished: %d records graded", len(targets))
}

// loadGuidelines fetches the project and extracts its guidelines text.
func (s *AlignmentService) loadGuidelines(ctx context.Context, projectID string) (text, projectName string, err error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return "", "", err
	}
	if !project.HasGuidelines() {
		return "", "", fmt.Errorf("%w: project guidelines not found", domain.ErrValidation)
	}
	text, err = s.extractor.ExtractText(project.Guidelines)
	if err != nil {
		return "", "", fmt.Errorf("could not parse guidelines document: %w", err)
	}
	return text, project.Name, nil
}

// Cancel requests cooperative cancellation of an alignment job. The worker
// observes the flag before its next gateway call.
func (s *AlignmentService) Cancel(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	return s.jobs.SetStatus(ctx, jobID, domain.AnalyticsStatusCancelled)
}

// ListJobs returns all alignment jobs of a project, newest first.
func (s *AlignmentService) ListJobs(ctx context.Context, projectID string) ([]domain.AnalyticsJob, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	return s.jobs.ListByProject(ctx, projectID)
}

// CompareResult is the outcome of grading one record against the project
// guidelines.
type CompareResult struct {
	Evaluation     string            `json:"evaluation"`
	AlignmentScore *int              `json:"alignment_score"`
	RecordContent  string            `json:"record_content"`
	ProjectName    string            `json:"project_name"`
	RecordType     domain.RecordType `json:"record_type"`
	Metadata       domain.JSONMap    `json:"metadata"`
}

// Compare grades one record against its project guidelines, returning the
// full verdict text plus the parsed 0-100 score. A cached verdict is reused
// unless force is set; fresh verdicts are cached on the record.
func (s *AlignmentService) Compare(ctx context.Context, recordID string, force bool) (*CompareResult, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, record.ProjectID)
	if err != nil {
		return nil, err
	}

	if record.AlignmentAnalysis != nil && !force {
		return s.compareResult(*record.AlignmentAnalysis, record, project.Name), nil
	}

	guidelines, projectName, err := s.loadGuidelines(ctx, record.ProjectID)
	if err != nil {
		return nil, err
	}

	verdict, err := s.completer.Complete(ctx, prompts.AlignmentUser(guidelines, record.Content), prompts.AlignmentSystem(projectName))
	if err != nil {
		return nil, fmt.Errorf("alignment completion failed: %w", err)
	}
	if err := s.records.SaveAlignment(ctx, record.ID, verdict); err != nil {
		return nil, fmt.Errorf("failed to cache verdict: %w", err)
	}

	return s.compareResult(verdict, record, projectName), nil
}

func (s *AlignmentService) compareResult(verdict string, record *domain.DataRecord, projectName string) *CompareResult {
	result := &CompareResult{
		Evaluation:    verdict,
		RecordContent: record.Content,
		ProjectName:   projectName,
		RecordType:    record.Type,
		Metadata:      record.Metadata,
	}
	if score, ok := ParseAlignmentScore(verdict); ok {
		result.AlignmentScore = &score
	}
	return result
}
