package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/i474232898/climate-timeseries/internal/climate"
)

const (
	tokenHeader = "PRIVATE-TOKEN"
	userAgent   = "climate-timeseries/1.0"
)

// Job states reported by the retrieve API.
const (
	statusAccepted   = "accepted"
	statusRunning    = "running"
	statusSuccessful = "successful"
	statusFailed     = "failed"
	statusRejected   = "rejected"
	statusDismissed  = "dismissed"
)

// Options tunes a Connector.
type Options struct {
	Backoff      BackoffConfig
	PollInterval time.Duration
}

// Connector opens Clients that share one HTTP client and circuit breaker.
type Connector struct {
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewConnector creates a Connector using client for all outbound calls.
func NewConnector(client *http.Client, opts Options, log zerolog.Logger) *Connector {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cds",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// A rejected request says nothing about the health of the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, climate.ErrRemoteRejection)
		},
	})

	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	return &Connector{
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: opts.Backoff,
		},
		circuit:      cb,
		pollInterval: opts.PollInterval,
		log:          log.With().Str("component", "cds").Logger(),
	}
}

// Connect returns a Client for endpoint authenticated with key.
func (c *Connector) Connect(endpoint, key string) (climate.Submitter, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: no API key configured", climate.ErrConnection)
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid endpoint %q", climate.ErrConnection, endpoint)
	}

	return &Client{
		base:         base,
		key:          key,
		httpCfg:      c.httpCfg,
		circuit:      c.circuit,
		pollInterval: c.pollInterval,
		log:          c.log,
	}, nil
}

// Client talks to a single retrieve API endpoint.
type Client struct {
	base         *url.URL
	key          string
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
	pollInterval time.Duration
	log          zerolog.Logger
}

type jobStatus struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

type jobResults struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
			Type string `json:"type"`
			Size int64  `json:"file:size"`
		} `json:"value"`
	} `json:"asset"`
}

// Submit runs a retrieval job for datasetID and writes its result to path.
// It blocks until the job finishes, fails or ctx is done.
func (c *Client) Submit(ctx context.Context, datasetID string, req climate.Request, path string) error {
	job, err := c.execute(ctx, datasetID, req)
	if err != nil {
		return err
	}
	c.log.Debug().Str("job", job.JobID).Str("status", job.Status).Msg("job submitted")

	if err := c.wait(ctx, job); err != nil {
		return err
	}

	href, err := c.results(ctx, job.JobID)
	if err != nil {
		return err
	}

	return c.download(ctx, href, path)
}

func (c *Client) execute(ctx context.Context, datasetID string, req climate.Request) (jobStatus, error) {
	body, err := json.Marshal(map[string]climate.Request{"inputs": req})
	if err != nil {
		return jobStatus{}, err
	}

	u := c.url("retrieve", "v1", "processes", datasetID, "execution")
	var job jobStatus
	if err := c.getJSON(ctx, http.MethodPost, u, body, &job); err != nil {
		return jobStatus{}, err
	}
	if job.JobID == "" {
		return jobStatus{}, fmt.Errorf("%w: response has no job id", climate.ErrRemoteRejection)
	}
	return job, nil
}

func (c *Client) wait(ctx context.Context, job jobStatus) error {
	u := c.url("retrieve", "v1", "jobs", job.JobID)
	for {
		switch job.Status {
		case statusSuccessful:
			return nil
		case statusFailed, statusRejected, statusDismissed:
			return fmt.Errorf("%w: job %s %s", climate.ErrRemoteRejection, job.JobID, job.Status)
		case statusAccepted, statusRunning, "":
		default:
			c.log.Warn().Str("job", job.JobID).Str("status", job.Status).Msg("unknown job status")
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		var next jobStatus
		if err := c.getJSON(ctx, http.MethodGet, u, nil, &next); err != nil {
			return err
		}
		next.JobID = job.JobID
		job = next
	}
}

func (c *Client) results(ctx context.Context, jobID string) (string, error) {
	var res jobResults
	if err := c.getJSON(ctx, http.MethodGet, c.url("retrieve", "v1", "jobs", jobID, "results"), nil, &res); err != nil {
		return "", err
	}
	if res.Asset.Value.Href == "" {
		return "", fmt.Errorf("%w: job %s has no result asset", climate.ErrRemoteRejection, jobID)
	}

	ref, err := url.Parse(res.Asset.Value.Href)
	if err != nil {
		return "", fmt.Errorf("%w: invalid asset href: %v", climate.ErrRemoteRejection, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// download streams href into path. The file is created or truncated; a
// failed copy leaves what was written so far.
func (c *Client) download(ctx context.Context, href, path string) error {
	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, href, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		if req.URL.Host == c.base.Host {
			req.Header.Set(tokenHeader, c.key)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("%w: download %s: %v", climate.ErrConnection, href, err)
	}
	return f.Close()
}

func (c *Client) getJSON(ctx context.Context, method, u string, body []byte, out any) error {
	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, func() (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, u, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set(tokenHeader, c.key)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", climate.ErrConnection, u, err)
	}
	return nil
}

func (c *Client) url(elem ...string) string {
	return c.base.JoinPath(elem...).String()
}
