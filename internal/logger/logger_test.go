package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Debug().Msg("hidden")
	log.Info().Str("file", "sst.nc").Msg("retrieved data")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "retrieved data" || entry["file"] != "sst.nc" || entry["service"] != "climate-timeseries" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewWithWriterRejectsBadConfig(t *testing.T) {
	if _, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for bad format")
	}
}
