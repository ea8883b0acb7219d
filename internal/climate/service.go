package climate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// SeriesLoader reads a retrieved file into a Series. An empty variable
// selects the file's first data variable.
type SeriesLoader interface {
	LoadSeries(path, variable string) (Series, error)
}

// Observer receives retrieval outcomes, e.g. for metrics.
type Observer interface {
	ObserveRetrieval(status Status, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRetrieval(Status, time.Duration) {}

// Service runs retrievals with a fixed credential, skips files that are
// already on disk and keeps a history of attempts.
type Service struct {
	retriever *Retriever
	store     Store
	loader    SeriesLoader
	observer  Observer
	key       string
	log       zerolog.Logger

	// flight serializes retrievals per output path.
	flight singleflight.Group
}

// NewService creates a new Service. observer may be nil.
func NewService(retriever *Retriever, store Store, loader SeriesLoader, observer Observer, key string, log zerolog.Logger) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		retriever: retriever,
		store:     store,
		loader:    loader,
		observer:  observer,
		key:       key,
		log:       log.With().Str("component", "service").Logger(),
	}
}

// Filename returns the output path for p without contacting the service.
func (s *Service) Filename(p Params) (string, error) {
	return s.retriever.Retrieve(context.Background(), s.key, p, false)
}

// Ensure makes sure the file for p exists. A non-empty file already on
// disk is reused unless the last recorded attempt for it failed; otherwise
// the retrieval is executed. Concurrent calls for the same path share one
// retrieval. Every attempt is recorded, and a failed retrieval returns the
// service error unchanged.
func (s *Service) Ensure(ctx context.Context, p Params) (Record, error) {
	path, err := s.Filename(p)
	if err != nil {
		return Record{}, err
	}
	return s.do(path, func() (Record, error) {
		if s.present(p, path) {
			now := time.Now().UTC()
			rec := Record{Params: p, Path: path, Status: StatusCached, StartedAt: now, FinishedAt: now}
			s.log.Debug().Str("file", path).Msg("file already present, skipping retrieval")
			s.store.SaveRecord(p, rec)
			s.observer.ObserveRetrieval(rec.Status, 0)
			return rec, nil
		}
		return s.refresh(ctx, p)
	})
}

// Refresh executes the retrieval for p regardless of what is on disk.
func (s *Service) Refresh(ctx context.Context, p Params) (Record, error) {
	path, err := s.Filename(p)
	if err != nil {
		return Record{}, err
	}
	return s.do(path, func() (Record, error) {
		return s.refresh(ctx, p)
	})
}

func (s *Service) do(path string, fn func() (Record, error)) (Record, error) {
	v, err, _ := s.flight.Do(path, func() (interface{}, error) {
		return fn()
	})
	rec, _ := v.(Record)
	return rec, err
}

// present reports whether path holds a complete download. A file left by
// a failed attempt stays on disk but is not trusted.
func (s *Service) present(p Params, path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() || fi.Size() == 0 {
		return false
	}
	if last, ok := s.lastAttempt(p, path); ok && last.Status == StatusFailed {
		s.log.Warn().Str("file", path).Msg("last retrieval failed, downloading again")
		return false
	}
	return true
}

// lastAttempt returns the newest record written for path. Records are kept
// per variable and location, so other date ranges are skipped.
func (s *Service) lastAttempt(p Params, path string) (Record, bool) {
	records, err := s.store.GetRange(p, time.Time{}, time.Now().UTC().Add(time.Hour))
	if err != nil {
		return Record{}, false
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Path == path {
			return records[i], true
		}
	}
	return Record{}, false
}

func (s *Service) refresh(ctx context.Context, p Params) (Record, error) {
	rec := Record{Params: p, StartedAt: time.Now().UTC()}

	path, err := s.retriever.Retrieve(ctx, s.key, p, true)
	rec.FinishedAt = time.Now().UTC()
	rec.Path = path
	if err != nil {
		rec.Path = s.retriever.Path(p)
		rec.Status = StatusFailed
		rec.Error = err.Error()
		s.log.Error().Err(err).Str("key", p.Key()).Msg("retrieval failed")
	} else {
		rec.Status = StatusDownloaded
	}

	s.store.SaveRecord(p, rec)
	s.observer.ObserveRetrieval(rec.Status, rec.FinishedAt.Sub(rec.StartedAt))
	return rec, err
}

// FullYears loads the retrieved file for p and truncates it to the years
// whose final hour is present. The file must already exist.
func (s *Service) FullYears(p Params) (Series, error) {
	path, err := s.Filename(p)
	if err != nil {
		return Series{}, err
	}
	if s.loader == nil {
		return Series{}, fmt.Errorf("no series loader configured")
	}

	series, err := s.loader.LoadSeries(path, "")
	if err != nil {
		return Series{}, fmt.Errorf("load %s: %w", path, err)
	}
	return TruncateToFullYears(series)
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(p Params) (Record, error) {
	return s.store.GetLatest(p)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(p Params, from, to time.Time) ([]Record, error) {
	return s.store.GetRange(p, from, to)
}
