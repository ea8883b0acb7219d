package climate

import (
	"context"
	"time"
)

// Submitter submits a request for datasetID to the remote service and
// persists the returned file at path.
type Submitter interface {
	Submit(ctx context.Context, datasetID string, req Request, path string) error
}

// Connector opens a Submitter on endpoint authenticated with key.
type Connector interface {
	Connect(endpoint, key string) (Submitter, error)
}

// Status is the outcome of a retrieval attempt.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusCached     Status = "cached"
	StatusFailed     Status = "failed"
)

// Record describes one retrieval attempt.
type Record struct {
	Params     Params    `json:"params"`
	Path       string    `json:"path"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"` // always UTC
	FinishedAt time.Time `json:"finishedAt"`
}

// Store is the contract the retrieval history store must satisfy.
type Store interface {
	SaveRecord(p Params, rec Record)
	GetLatest(p Params) (Record, error)
	GetRange(p Params, from, to time.Time) ([]Record, error)
}
