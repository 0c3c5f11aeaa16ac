package harvest

import (
	"sort"
	"sync"
	"time"

	"github.com/quoteharvest/harvester/pkg/extract"
)

// WorkItem identifies one page to fetch. Seq is the submission index.
type WorkItem struct {
	Source extract.Source `json:"source"`
	URL    string         `json:"url"`
	Seq    int            `json:"seq"`
	Page   int            `json:"page,omitempty"`
	Letter string         `json:"letter,omitempty"`
}

// FailureKind classifies a failed work item.
type FailureKind string

// Failure kinds beyond the fetch kinds (network, timeout, http_status, cancelled).
const (
	KindExtraction FailureKind = "extraction"
	KindPanic      FailureKind = "panic"
	KindCancelled  FailureKind = "cancelled"
)

// Failure is one entry of the failure manifest.
type Failure struct {
	Item       WorkItem    `json:"item"`
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Attempts   int         `json:"attempts,omitempty"`
	Detail     string      `json:"detail"`
	Err        error       `json:"-"`
}

// Error implements the error interface.
func (f Failure) Error() string {
	return string(f.Kind) + " " + f.Item.URL + ": " + f.Detail
}

// Unwrap implements error unwrapping for errors.Is/As.
func (f Failure) Unwrap() error {
	return f.Err
}

type itemRecords struct {
	seq     int
	records []extract.Record
}

// Result aggregates the outcome of one Harvest call. It is safe for
// concurrent use.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Submitted int

	mu        sync.Mutex
	succeeded int
	entries   []itemRecords
	failures  []Failure
}

func newResult(runID string, submitted int) *Result {
	return &Result{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Submitted: submitted,
	}
}

func (r *Result) addRecords(seq int, recs []extract.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded++
	r.entries = append(r.entries, itemRecords{seq: seq, records: recs})
}

func (r *Result) addFailure(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// Succeeded returns the number of items that produced a (possibly empty)
// record set.
func (r *Result) Succeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded
}

// Records returns all records in completion order.
func (r *Result) Records() []extract.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return flatten(r.entries)
}

// SortedRecords returns all records ordered by their item's Seq. Records of
// one item keep their page order.
func (r *Result) SortedRecords() []extract.Record {
	r.mu.Lock()
	entries := make([]itemRecords, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return flatten(entries)
}

// Len returns the number of records.
func (r *Result) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		n += len(e.records)
	}
	return n
}

// Failures returns the failure manifest in completion order.
func (r *Result) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Failure, len(r.failures))
	copy(out, r.failures)
	return out
}

func flatten(entries []itemRecords) []extract.Record {
	n := 0
	for _, e := range entries {
		n += len(e.records)
	}
	out := make([]extract.Record, 0, n)
	for _, e := range entries {
		out = append(out, e.records...)
	}
	return out
}
