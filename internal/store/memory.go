package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/climate-timeseries/internal/climate"
)

var (
	// ErrNotFound is returned when no retrieval has been recorded for a key.
	ErrNotFound = errors.New("no retrievals for variable and location")
)

// RecordHistory holds a time-ordered list of retrieval records for a key.
type RecordHistory struct {
	Records []climate.Record
}

// MemoryStore is a concurrency-safe in-memory implementation of a retrieval history store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: variable and location, value: history
	data map[string]*RecordHistory

	// retention configuration
	maxHistory int           // max number of records per key
	maxAge     time.Duration // optional max age for records

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*RecordHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveRecord appends a record for p and enforces retention.
func (s *MemoryStore) SaveRecord(p climate.Params, rec climate.Record) {
	key := p.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &RecordHistory{}
		s.data[key] = history
	}

	history.Records = append(history.Records, rec)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Records) > s.maxHistory {
		over := len(history.Records) - s.maxHistory
		history.Records = history.Records[over:]
	}

	// Enforce retention by age. The newest record is always kept.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Records)-1; i++ {
			if !history.Records[i].FinishedAt.Before(cutoff) {
				break
			}
		}
		history.Records = history.Records[i:]
	}
}

// GetLatest returns the most recent record for p's variable and location.
func (s *MemoryStore) GetLatest(p climate.Params) (climate.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[p.Key()]
	if !ok || len(history.Records) == 0 {
		return climate.Record{}, ErrNotFound
	}
	return history.Records[len(history.Records)-1], nil
}

// GetRange returns all records for p's variable and location that finished
// between from and to (inclusive).
func (s *MemoryStore) GetRange(p climate.Params, from, to time.Time) ([]climate.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[p.Key()]
	if !ok || len(history.Records) == 0 {
		return nil, ErrNotFound
	}

	var result []climate.Record
	for _, rec := range history.Records {
		if !rec.FinishedAt.Before(from) && !rec.FinishedAt.After(to) {
			result = append(result, rec)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
