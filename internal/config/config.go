package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/climate-timeseries/internal/climate"
)

// Defaults for the climate data service.
const (
	DefaultEndpoint  = "https://cads-mini-cci1.copernicus-climate.eu/api"
	DefaultDatasetID = "test-adaptor-arco"
)

type AppConfig struct {
	// Climate data service.
	Endpoint  string
	DatasetID string
	APIKey    string
	OutputDir string

	// HTTPTimeout bounds each outbound call (0 = no client timeout).
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	MaxRetries   int

	// FetchInterval controls how often scheduled jobs are checked.
	FetchInterval time.Duration
	Jobs          []Job

	// In-memory retrieval history retention.
	StoreMaxHistory int           // max records per variable/location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of records (0 = unlimited)

	GeocodingAPIKey string

	LogLevel  string
	LogFormat string

	Port string
}

// Job is a retrieval run by the scheduler. A job names either coordinates
// or a city and country to geocode.
type Job struct {
	Variable  string   `yaml:"variable" default:"2m_temperature" validate:"required"`
	Start     string   `yaml:"start" validate:"required"`
	End       string   `yaml:"end" validate:"required"`
	Latitude  *float64 `yaml:"latitude" validate:"required_without=City"`
	Longitude *float64 `yaml:"longitude" validate:"required_with=Latitude"`
	City      string   `yaml:"city" validate:"required_without=Latitude"`
	Country   string   `yaml:"country" validate:"required_with=City"`
}

// Params converts j into retrieval parameters, resolving a city through
// geocode when no coordinates are given.
func (j Job) Params(geocode func(city, country string) (lat, lng float64, err error)) (climate.Params, error) {
	p := climate.Params{
		Variable:  j.Variable,
		DateRange: climate.DateRange{Start: j.Start, End: j.End},
	}
	if j.Latitude != nil && j.Longitude != nil {
		p.Latitude, p.Longitude = *j.Latitude, *j.Longitude
		return p, nil
	}
	if geocode == nil {
		return climate.Params{}, fmt.Errorf("job %s for %s,%s: geocoding not configured", j.Variable, j.City, j.Country)
	}
	lat, lng, err := geocode(j.City, j.Country)
	if err != nil {
		return climate.Params{}, fmt.Errorf("job %s for %s,%s: %w", j.Variable, j.City, j.Country, err)
	}
	p.Latitude, p.Longitude = lat, lng
	return p, nil
}

type jobsFile struct {
	Jobs []Job `yaml:"jobs" validate:"dive"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("no .env file found or error loading it")
	}
	cfg := &AppConfig{}

	cfg.Endpoint = getenvDefault("CDS_API_URL", DefaultEndpoint)
	cfg.DatasetID = getenvDefault("CDS_DATASET", DefaultDatasetID)
	cfg.APIKey = os.Getenv("CDS_API_KEY")
	cfg.OutputDir = os.Getenv("OUTPUT_DIR")
	cfg.GeocodingAPIKey = os.Getenv("GOOGLE_GEOCODING_API_KEY")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "0s"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getenvDuration("POLL_INTERVAL", "2s"); err != nil {
		return nil, err
	}
	// Scheduler interval: default daily.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "720h"); err != nil {
		return nil, err
	}
	cfg.MaxRetries = getenvInt("MAX_RETRIES", 0)
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 100)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "console")
	cfg.Port = getenvDefault("PORT", "8080")

	if path := os.Getenv("JOBS_FILE"); path != "" {
		jobs, err := LoadJobs(path)
		if err != nil {
			return nil, err
		}
		cfg.Jobs = jobs
	}

	return cfg, nil
}

// LoadJobs reads scheduled jobs from a YAML file of the form:
//
//	jobs:
//	  - variable: 2m_temperature
//	    start: "2000-01-01"
//	    end: "2020-12-31"
//	    latitude: 52.5
//	    longitude: 13.4
func LoadJobs(path string) ([]Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}

	var f jobsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse jobs: %w", err)
	}
	for i := range f.Jobs {
		if err := defaults.Set(&f.Jobs[i]); err != nil {
			return nil, fmt.Errorf("jobs[%d] defaults: %w", i, err)
		}
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("validate jobs: %w", err)
	}

	return f.Jobs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
