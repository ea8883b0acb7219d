package store

import (
	"errors"
	"testing"
	"time"

	"github.com/i474232898/climate-timeseries/internal/climate"
)

func params(variable string) climate.Params {
	return climate.Params{
		Variable:  variable,
		DateRange: climate.DateRange{Start: "2000-01-01", End: "2000-12-31"},
		Latitude:  10,
		Longitude: 20,
	}
}

func record(p climate.Params, finished time.Time) climate.Record {
	return climate.Record{Params: p, Status: climate.StatusDownloaded, StartedAt: finished, FinishedAt: finished}
}

func TestMemoryStoreLatestAndRange(t *testing.T) {
	s := NewMemoryStore(0, 0)
	p := params("sst")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.GetLatest(p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i := 0; i < 3; i++ {
		s.SaveRecord(p, record(p, base.Add(time.Duration(i)*time.Hour)))
	}
	s.SaveRecord(params("t2m"), record(params("t2m"), base))

	latest, err := s.GetLatest(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !latest.FinishedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected latest %v", latest.FinishedAt)
	}

	got, err := s.GetRange(p, base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	if _, err := s.GetRange(p, base.Add(24*time.Hour), base.Add(48*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty range, got %v", err)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := params("sst")

	byCount := NewMemoryStore(2, 0)
	for i := 0; i < 5; i++ {
		byCount.SaveRecord(p, record(p, now.Add(time.Duration(i)*time.Minute)))
	}
	got, _ := byCount.GetRange(p, now, now.Add(time.Hour))
	if len(got) != 2 {
		t.Fatalf("expected 2 records after count retention, got %d", len(got))
	}

	byAge := NewMemoryStore(0, time.Hour)
	byAge.now = func() time.Time { return now }
	byAge.SaveRecord(p, record(p, now.Add(-3*time.Hour)))
	byAge.SaveRecord(p, record(p, now.Add(-2*time.Hour)))
	byAge.SaveRecord(p, record(p, now.Add(-time.Minute)))

	got, _ = byAge.GetRange(p, now.Add(-24*time.Hour), now)
	if len(got) != 1 {
		t.Fatalf("expected 1 record after age retention, got %d", len(got))
	}

	stale := NewMemoryStore(0, time.Hour)
	stale.now = func() time.Time { return now }
	stale.SaveRecord(p, record(p, now.Add(-5*time.Hour)))
	if _, err := stale.GetLatest(p); err != nil {
		t.Fatalf("newest record should survive age retention: %v", err)
	}
}
