package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartupLoggerEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	NewStartupLogger("annotate-lambda").
		CommitHash("abc123").
		Bucket("results", "vision-results").
		Bucket("unused", "").
		DynamoTable("ledger", "vision-runs").
		Feature("ledger", true).
		Config("maxResults", "50").
		InitDuration(120 * time.Millisecond).
		write(logger.Info())

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if doc["message"] != "Startup" {
		t.Errorf("message = %v", doc["message"])
	}
	process := doc["process"].(map[string]any)
	if process["name"] != "annotate-lambda" || process["commitHash"] != "abc123" {
		t.Errorf("process = %v", process)
	}
	resources := doc["resources"].(map[string]any)
	buckets := resources["buckets"].(map[string]any)
	if buckets["results"] != "vision-results" {
		t.Errorf("buckets = %v", buckets)
	}
	if _, ok := buckets["unused"]; ok {
		t.Error("empty bucket names should be skipped")
	}
	if _, ok := resources["ssmParams"]; ok {
		t.Error("empty resource groups should be omitted")
	}
	if doc["features"].(map[string]any)["ledger"] != true {
		t.Errorf("features = %v", doc["features"])
	}
	if doc["config"].(map[string]any)["maxResults"] != "50" {
		t.Errorf("config = %v", doc["config"])
	}
}

func TestSetupStructured(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Setup("warn", true, &buf)
	log.Info().Msg("dropped")
	log.Warn().Str("object", "cat.jpg").Msg("kept")

	var doc map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &doc); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if doc["message"] != "kept" || doc["object"] != "cat.jpg" || doc["level"] != "warn" {
		t.Errorf("doc = %v", doc)
	}
}
