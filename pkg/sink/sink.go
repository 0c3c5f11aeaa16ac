// Package sink accumulates harvest results and persists them to disk.
package sink

import (
	"sync"
	"time"

	"github.com/quoteharvest/harvester/pkg/extract"
	"github.com/quoteharvest/harvester/pkg/harvest"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/rs/zerolog"
)

// Sink is an append-only collection of records and failures. It is safe for
// concurrent use.
type Sink struct {
	mu       sync.Mutex
	records  []extract.Record
	failures []harvest.Failure
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{
		logger: logging.NewLogger("sink"),
		now:    time.Now,
	}
}

// Accumulate appends the records and failures of r, records in Seq order.
func (s *Sink) Accumulate(r *harvest.Result) {
	recs := r.SortedRecords()
	failures := r.Failures()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	s.failures = append(s.failures, failures...)
}

// Add appends records directly.
func (s *Sink) Add(recs ...extract.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
}

// Records returns a copy of the accumulated records.
func (s *Sink) Records() []extract.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]extract.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Failures returns a copy of the accumulated failure manifest.
func (s *Sink) Failures() []harvest.Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]harvest.Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Len returns the number of accumulated records.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flush saves the accumulated records to the timestamped variant of dest.
// Records stay in the Sink whether or not the write succeeds.
func (s *Sink) Flush(dest string) (string, error) {
	recs := s.Records()
	path, err := Save(recs, dest, s.now())
	if err != nil {
		s.logger.Error().Err(err).Str("dest", dest).Int("records", len(recs)).Msg("Failed to persist records")
		return "", err
	}
	s.logger.Info().Str("path", path).Int("records", len(recs)).Msg("Records persisted")
	return path, nil
}
