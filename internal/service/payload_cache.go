package service

import "sync"

// IngestKind selects how a submitted payload is interpreted.
type IngestKind string

const (
	// IngestKindCSV treats the payload as delimited text with a header row.
	IngestKindCSV IngestKind = "CSV"
	// IngestKindAPI treats the payload as a URL returning a JSON document.
	IngestKindAPI IngestKind = "API"
)

// Valid reports whether k is a known ingest kind.
func (k IngestKind) Valid() bool {
	return k == IngestKindCSV || k == IngestKindAPI
}

// CachedPayload is a submitted payload waiting for its job to be promoted.
type CachedPayload struct {
	Kind    IngestKind
	Payload string
	Options IngestOptions
}

// PayloadCache holds in-flight job payloads keyed by job id. It is
// process-local and NOT durable: a restart loses every cached payload, and
// the queue surfaces the orphaned jobs as FAILED rather than retrying them.
// Each key is written once at submission and deleted once at a terminal
// state.
type PayloadCache struct {
	mu      sync.Mutex
	entries map[string]CachedPayload
}

// NewPayloadCache creates an empty PayloadCache.
func NewPayloadCache() *PayloadCache {
	return &PayloadCache{entries: make(map[string]CachedPayload)}
}

// Put stores the payload for a newly created job.
func (c *PayloadCache) Put(jobID string, entry CachedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[jobID] = entry
}

// Get returns the payload for a job, if still resident.
func (c *PayloadCache) Get(jobID string) (CachedPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[jobID]
	return entry, ok
}

// Delete drops the payload once its job reaches a terminal state.
func (c *PayloadCache) Delete(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, jobID)
}
