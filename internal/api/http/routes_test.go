package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/i474232898/climate-timeseries/internal/climate"
	"github.com/i474232898/climate-timeseries/internal/climate/netcdf"
	"github.com/i474232898/climate-timeseries/internal/store"
)

// stubConnector writes a fixed payload, or fails with err.
type stubConnector struct {
	err error
}

func (s stubConnector) Connect(string, string) (climate.Submitter, error) { return s, nil }

func (s stubConnector) Submit(_ context.Context, _ string, _ climate.Request, path string) error {
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(path, []byte("netcdf"), 0o644)
}

func newTestApp(t *testing.T, conn climate.Connector) *fiber.App {
	t.Helper()

	app := fiber.New()
	r := climate.NewRetriever(climate.Config{Endpoint: "http://cds", DatasetID: "ds", OutputDir: t.TempDir()}, conn, zerolog.Nop())
	svc := climate.NewService(r, store.NewMemoryStore(10, time.Hour), netcdf.NewLoader(), nil, "key", zerolog.Nop())
	RegisterRoutes(app, svc)
	return app
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
}

const retrieveBody = `{"variable":"sst","dateRange":{"start":"2000-01-01","end":"2000-12-31"},"latitude":10,"longitude":20}`

func postJSON(t *testing.T, app *fiber.App, target, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func TestFilenameEndpoint(t *testing.T) {
	app := newTestApp(t, stubConnector{err: errors.New("must not be called")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeseries/filename?variable=sst&start=2000-01-01&end=2000-12-31&lat=10&lng=20", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		Filename string `json:"filename"`
	}
	decode(t, resp, &body)
	if !strings.HasSuffix(body.Filename, "sst_2000-01-01_2000-12-31_10.0_20.0.nc") {
		t.Fatalf("unexpected filename %q", body.Filename)
	}
}

// TestFilenameEndpointValidation verifies missing parameters are rejected.
func TestFilenameEndpointValidation(t *testing.T) {
	app := newTestApp(t, stubConnector{})

	for _, target := range []string{
		"/api/v1/timeseries/filename?start=2000-01-01&end=2000-12-31&lat=10&lng=20",
		"/api/v1/timeseries/filename?variable=sst&end=2000-12-31&lat=10&lng=20",
		"/api/v1/timeseries/filename?variable=sst&start=2000-01-01&end=2000-12-31&lng=20",
		"/api/v1/timeseries/filename?variable=sst&start=2000-01-01&end=2000-12-31&lat=north&lng=20",
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestRetrieveThenLatest(t *testing.T) {
	app := newTestApp(t, stubConnector{})

	resp := postJSON(t, app, "/api/v1/timeseries/retrieve", retrieveBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var rec climate.Record
	decode(t, resp, &rec)
	if rec.Status != climate.StatusDownloaded {
		t.Fatalf("expected downloaded, got %s", rec.Status)
	}

	resp = postJSON(t, app, "/api/v1/timeseries/retrieve", retrieveBody)
	decode(t, resp, &rec)
	if rec.Status != climate.StatusCached {
		t.Fatalf("expected cached on second call, got %s", rec.Status)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/retrievals/latest?variable=sst&lat=10&lng=20", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	from := time.Now().Add(-time.Hour).Unix()
	to := time.Now().Add(time.Hour).Unix()
	resp, err = app.Test(httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/retrievals/history?variable=sst&lat=10&lng=20&from=%d&to=%d", from, to), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var history struct {
		Records []climate.Record `json:"records"`
	}
	decode(t, resp, &history)
	if len(history.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history.Records))
	}
}

func TestRetrieveSurfacesRemoteErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: 400 unknown variable", climate.ErrRemoteRejection), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: 401 bad key", climate.ErrConnection), http.StatusBadGateway},
	}
	for _, tt := range tests {
		app := newTestApp(t, stubConnector{err: tt.err})

		resp := postJSON(t, app, "/api/v1/timeseries/retrieve", retrieveBody)
		if resp.StatusCode != tt.status {
			t.Fatalf("%v: expected status %d, got %d", tt.err, tt.status, resp.StatusCode)
		}
		b, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(b), tt.err.Error()) {
			t.Fatalf("expected body to carry %q, got %q", tt.err, b)
		}
	}
}

func TestFullYearsMissingFile(t *testing.T) {
	app := newTestApp(t, stubConnector{})

	resp := postJSON(t, app, "/api/v1/timeseries/full-years", retrieveBody)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d before retrieval, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestCumulativeDaysEndpoint(t *testing.T) {
	app := newTestApp(t, stubConnector{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/calendar/cumulative-days", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		CumulativeDays []int `json:"cumulativeDays"`
	}
	decode(t, resp, &body)
	if len(body.CumulativeDays) != 12 || body.CumulativeDays[11] != 366 {
		t.Fatalf("unexpected table %v", body.CumulativeDays)
	}
}

func TestHistoryValidation(t *testing.T) {
	app := newTestApp(t, stubConnector{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet,
		"/api/v1/retrievals/history?variable=sst&lat=10&lng=20&from=2000&to=1000", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}
