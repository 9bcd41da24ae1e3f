package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/marcusb/corpusd/internal/domain"
)

func newAlignmentFixture() (*fakeRecordStore, *fakeAnalyticsJobStore, *fakeProjectStore) {
	store := newFakeRecordStore()
	jobs := newFakeAnalyticsJobStore()
	projects := &fakeProjectStore{projects: map[string]*domain.Project{
		"p-1": {
			ID:         "p-1",
			Name:       "Support Quality",
			Guidelines: []byte("Answer within one business day. Never promise refunds."),
		},
		"p-empty": {ID: "p-empty", Name: "No Guidelines"},
	}}
	return store, jobs, projects
}

func seedUnscored(store *fakeRecordStore, projectID string, n int) {
	for i := 0; i < n; i++ {
		store.add(&domain.DataRecord{
			ID:        fmt.Sprintf("rec-%02d", i),
			ProjectID: projectID,
			Type:      domain.RecordTypeFeedback,
			Content:   fmt.Sprintf("agent reply number %d", i),
		})
	}
}

func passingCompleter() *fakeCompleter {
	return &fakeCompleter{complete: func(prompt, systemPrompt string) (string, error) {
		return "ALIGNMENT_SCORE: 80\n\n## Detailed Analysis\n- follows the response-time rule", nil
	}}
}

func TestStartBulkAlignment(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	seedUnscored(store, "p-1", 3)
	completer := passingCompleter()
	extractor := &fakeExtractor{text: "guideline text"}
	svc := NewAlignmentService(store, jobs, projects, completer, extractor)
	ctx := context.Background()

	jobID, err := svc.StartBulkAlignment(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	// The worker runs in the background; poll the fake store for the
	// terminal state.
	waitForAnalyticsTerminal(t, jobs, jobID)

	job, _ := jobs.GetByID(ctx, jobID)
	if job.Status != domain.AnalyticsStatusCompleted {
		t.Fatalf("status = %s (%s), want COMPLETED", job.Status, job.Error)
	}
	if job.TotalRecords != 3 || job.ProcessedCount != 3 {
		t.Errorf("progress = %d/%d, want 3/3", job.ProcessedCount, job.TotalRecords)
	}
	remaining, _ := store.CountMissingAlignment(ctx, "p-1")
	if remaining != 0 {
		t.Errorf("%d records still unscored", remaining)
	}
}

func TestStartBulkAlignmentSingleFlight(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	seedUnscored(store, "p-1", 1)
	svc := NewAlignmentService(store, jobs, projects, passingCompleter(), &fakeExtractor{text: "g"})
	ctx := context.Background()

	running := &domain.AnalyticsJob{ID: "active-1", ProjectID: "p-1", Status: domain.AnalyticsStatusProcessing}
	jobs.Create(ctx, running)

	jobID, err := svc.StartBulkAlignment(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "active-1" {
		t.Errorf("jobID = %q, want the already-active job id", jobID)
	}
}

func TestStartBulkAlignmentConcurrentStartsShareOneJob(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	seedUnscored(store, "p-1", 2)
	ctx := context.Background()

	// Hold the worker inside its first gateway call so the winning job stays
	// PROCESSING while both starts race through the active-job check.
	release := make(chan struct{})
	completer := &fakeCompleter{complete: func(prompt, systemPrompt string) (string, error) {
		<-release
		return "ALIGNMENT_SCORE: 80\n\n## Detailed Analysis", nil
	}}
	svc := NewAlignmentService(store, jobs, projects, completer, &fakeExtractor{text: "g"})

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = svc.StartBulkAlignment(ctx, "p-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatal(errs[i])
		}
	}
	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("concurrent starts returned %q and %q, want one shared job id", ids[0], ids[1])
	}
	all, _ := jobs.ListByProject(ctx, "p-1")
	if len(all) != 1 {
		t.Errorf("created %d jobs, want 1", len(all))
	}

	close(release)
	waitForAnalyticsTerminal(t, jobs, ids[0])
}

func TestStartBulkAlignmentNothingToDo(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	svc := NewAlignmentService(store, jobs, projects, passingCompleter(), &fakeExtractor{text: "g"})

	jobID, err := svc.StartBulkAlignment(context.Background(), "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if jobID != "" {
		t.Errorf("jobID = %q, want none when every record is scored", jobID)
	}
}

func TestBulkAlignmentFailsWithoutGuidelines(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	seedUnscored(store, "p-empty", 2)
	svc := NewAlignmentService(store, jobs, projects, passingCompleter(), &fakeExtractor{text: "g"})
	ctx := context.Background()

	job := &domain.AnalyticsJob{ID: "job-ng", ProjectID: "p-empty", Status: domain.AnalyticsStatusProcessing, TotalRecords: 2}
	jobs.Create(ctx, job)
	svc.run(ctx, "job-ng", "p-empty")

	got, _ := jobs.GetByID(ctx, "job-ng")
	if got.Status != domain.AnalyticsStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if !strings.Contains(got.Error, "guidelines") {
		t.Errorf("error = %q, want guidelines diagnostic", got.Error)
	}
}

func TestBulkAlignmentSkipsFailedRecords(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	seedUnscored(store, "p-1", 3)
	ctx := context.Background()

	// Second record always fails; the job must finish anyway.
	calls := 0
	completer := &fakeCompleter{complete: func(prompt, systemPrompt string) (string, error) {
		calls++
		if calls == 2 {
			return "", fmt.Errorf("gateway hiccup")
		}
		return "ALIGNMENT_SCORE: 70\n\n## Detailed Analysis", nil
	}}
	svc := NewAlignmentService(store, jobs, projects, completer, &fakeExtractor{text: "g"})

	job := &domain.AnalyticsJob{ID: "job-skip", ProjectID: "p-1", Status: domain.AnalyticsStatusProcessing, TotalRecords: 3}
	jobs.Create(ctx, job)
	svc.run(ctx, "job-skip", "p-1")

	got, _ := jobs.GetByID(ctx, "job-skip")
	if got.Status != domain.AnalyticsStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED despite one skip", got.Status)
	}
	if got.ProcessedCount != 3 {
		t.Errorf("processed = %d, want 3", got.ProcessedCount)
	}
	remaining, _ := store.CountMissingAlignment(ctx, "p-1")
	if remaining != 1 {
		t.Errorf("unscored = %d, want the skipped record only", remaining)
	}
}

func TestBulkAlignmentPreservesCancellation(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	seedUnscored(store, "p-1", 4)
	ctx := context.Background()

	completer := passingCompleter()
	svc := NewAlignmentService(store, jobs, projects, completer, &fakeExtractor{text: "g"})

	// Cancel before the second record's gateway call.
	jobs.statusHook = func(check int, current domain.AnalyticsStatus) domain.AnalyticsStatus {
		if check >= 2 {
			return domain.AnalyticsStatusCancelled
		}
		return current
	}

	job := &domain.AnalyticsJob{ID: "job-c", ProjectID: "p-1", Status: domain.AnalyticsStatusProcessing, TotalRecords: 4}
	jobs.Create(ctx, job)
	svc.run(ctx, "job-c", "p-1")

	got, _ := jobs.GetByID(ctx, "job-c")
	if got.Status != domain.AnalyticsStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED preserved", got.Status)
	}
	if completer.callCount() != 1 {
		t.Errorf("completer called %d times, want 1", completer.callCount())
	}
}

func TestCompareCachesVerdict(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	store.add(&domain.DataRecord{
		ID:        "rec-1",
		ProjectID: "p-1",
		Type:      domain.RecordTypeTask,
		Content:   "please issue a refund right away",
		Metadata:  domain.JSONMap{"task_id": "t-1"},
	})
	completer := passingCompleter()
	svc := NewAlignmentService(store, jobs, projects, completer, &fakeExtractor{text: "g"})
	ctx := context.Background()

	result, err := svc.Compare(ctx, "rec-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.AlignmentScore == nil || *result.AlignmentScore != 80 {
		t.Fatalf("score = %v, want 80", result.AlignmentScore)
	}
	if result.ProjectName != "Support Quality" {
		t.Errorf("project name = %q", result.ProjectName)
	}

	// Second call serves the cache.
	if _, err := svc.Compare(ctx, "rec-1", false); err != nil {
		t.Fatal(err)
	}
	if completer.callCount() != 1 {
		t.Errorf("completer called %d times, want cached reuse", completer.callCount())
	}

	// Force regenerates.
	if _, err := svc.Compare(ctx, "rec-1", true); err != nil {
		t.Fatal(err)
	}
	if completer.callCount() != 2 {
		t.Errorf("completer called %d times, want forced refresh", completer.callCount())
	}
}

func TestCompareUnknownRecord(t *testing.T) {
	store, jobs, projects := newAlignmentFixture()
	svc := NewAlignmentService(store, jobs, projects, passingCompleter(), &fakeExtractor{text: "g"})
	if _, err := svc.Compare(context.Background(), "nope", false); err == nil {
		t.Fatal("expected not-found error")
	}
}

func waitForAnalyticsTerminal(t *testing.T, jobs *fakeAnalyticsJobStore, jobID string) {
	t.Helper()
	for i := 0; i < 200; i++ {
		job, err := jobs.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status.Terminal() {
			return
		}
		sleepBriefly()
	}
	t.Fatal("alignment job never reached a terminal state")
}
