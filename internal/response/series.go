package response

import (
	"iter"
	"sync"
)

// Record is the response measured at one frequency
type Record struct {
	Frequency float64    // Hz
	Input     float64    // input magnitude, in the configured voltage convention
	Output    float64    // output magnitude, in the configured voltage convention
	GainDB    float64    // 20*log10(|Output/Input|)
	Time      float64    // phase in degrees or delay in seconds, see Unit
	Unit      TimeMetric // what Time holds
}

// Series is an append-only, frequency ordered sequence of records. It is safe
// for concurrent use.
type Series struct {
	mu      sync.Mutex
	records []Record
}

// NewSeries creates a series holding records, in order
func NewSeries(records ...Record) *Series {
	return &Series{records: append([]Record(nil), records...)}
}

func (s *Series) Append(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// Len returns the number of records
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// At returns the i-th record. It panics when i is out of range, like a slice.
func (s *Series) At(i int) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[i]
}

// Last returns the most recent record, false when the series is empty
func (s *Series) Last() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return Record{}, false
	}
	return s.records[len(s.records)-1], true
}

// Records returns a copy of all records
func (s *Series) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// All iterates over a snapshot of the series taken when iteration starts
func (s *Series) All() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		for i, r := range s.Records() {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Clone returns an independent copy
func (s *Series) Clone() *Series {
	return NewSeries(s.Records()...)
}

// Reset removes all records
func (s *Series) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}
