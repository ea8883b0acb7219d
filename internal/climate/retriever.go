package climate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate = validator.New()

// Config holds the remote service coordinates used by a Retriever.
type Config struct {
	Endpoint  string
	DatasetID string

	// OutputDir is where retrieved files are written. Empty means the
	// working directory.
	OutputDir string
}

// Retriever builds retrieval requests and optionally executes them.
type Retriever struct {
	cfg       Config
	connector Connector
	log       zerolog.Logger
}

// NewRetriever creates a Retriever for the given service configuration.
func NewRetriever(cfg Config, connector Connector, log zerolog.Logger) *Retriever {
	return &Retriever{
		cfg:       cfg,
		connector: connector,
		log:       log.With().Str("component", "retriever").Logger(),
	}
}

// Path returns where the file for p is written.
func (r *Retriever) Path(p Params) string {
	name := Filename(p)
	if r.cfg.OutputDir == "" {
		return name
	}
	return filepath.Join(r.cfg.OutputDir, name)
}

// Retrieve returns the output path for p. When execute is false nothing is
// sent and nothing is written; the path is the one an executed retrieval
// would write to. When execute is true the request is submitted with key
// and the result is saved at that path, overwriting any existing file.
// Errors from the remote service are returned as is.
func (r *Retriever) Retrieve(ctx context.Context, key string, p Params, execute bool) (string, error) {
	if err := validate.Struct(p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	path := r.Path(p)
	if !execute {
		return path, nil
	}

	req := NewRequest(p)
	r.log.Info().
		Str("dataset", r.cfg.DatasetID).
		Strs("variable", req.Variable).
		Strs("date", req.Date).
		Float64("latitude", req.Location.Latitude).
		Float64("longitude", req.Location.Longitude).
		Str("data_format", string(req.DataFormat)).
		Msg("submitting request")
	r.log.Info().Str("file", path).Msg("target file")

	sub, err := r.connector.Connect(r.cfg.Endpoint, key)
	if err != nil {
		return "", err
	}
	if err := sub.Submit(ctx, r.cfg.DatasetID, req, path); err != nil {
		return "", err
	}

	r.log.Info().Str("file", path).Msg("retrieved data")
	return path, nil
}
