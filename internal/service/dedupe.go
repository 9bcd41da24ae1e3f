package service

import (
	"context"
	"fmt"

	"github.com/marcusb/corpusd/internal/domain"
	"golang.org/x/sync/errgroup"
)

// externalIDFields are the raw-record keys an external identifier may hide
// under. Kept in sync with the metadata keys the store probes.
var externalIDFields = []string{"task_id", "id", "uuid", "record_id"}

// SkipReasonDuplicate tallies records suppressed by the duplicate filter.
const SkipReasonDuplicate = "Duplicate ID"

// ExternalIDProber answers whether a record with a given external identifier
// already exists for a project and type.
type ExternalIDProber interface {
	ExistsByExternalID(ctx context.Context, projectID string, recordType domain.RecordType, externalID string) (bool, error)
}

// Candidate is one raw record after field extraction, awaiting the
// duplicate check.
type Candidate struct {
	Raw      interface{}
	Content  string
	Category domain.RecordCategory
}

// ExternalID returns the candidate's external identifier, or "" when the raw
// record carries none under any known key.
func (c Candidate) ExternalID() string {
	record := asRecord(c.Raw)
	for _, field := range externalIDFields {
		if s, ok := stringValue(record, field); ok && s != "" {
			return s
		}
	}
	return ""
}

// DuplicateFilter suppresses records whose external identifier already
// exists in the project under the same record type. Type scoping is a hard
// invariant: a TASK and a FEEDBACK row may share an external id without
// being duplicates of each other.
type DuplicateFilter struct {
	store ExternalIDProber
}

// NewDuplicateFilter creates a new DuplicateFilter.
func NewDuplicateFilter(store ExternalIDProber) *DuplicateFilter {
	return &DuplicateFilter{store: store}
}

// Partition splits candidates into unique records and a duplicate count.
// Records without an external identifier are always unique. Store probes for
// one chunk run concurrently; input order is preserved in the output.
func (f *DuplicateFilter) Partition(ctx context.Context, projectID string, recordType domain.RecordType, candidates []Candidate) ([]Candidate, int, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	duplicate := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		externalID := c.ExternalID()
		if externalID == "" {
			continue
		}
		i := i
		g.Go(func() error {
			exists, err := f.store.ExistsByExternalID(gctx, projectID, recordType, externalID)
			if err != nil {
				return fmt.Errorf("failed to probe external id %q: %w", externalID, err)
			}
			duplicate[i] = exists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	unique := make([]Candidate, 0, len(candidates))
	duplicates := 0
	for i, c := range candidates {
		if duplicate[i] {
			duplicates++
			continue
		}
		unique = append(unique, c)
	}
	return unique, duplicates, nil
}
