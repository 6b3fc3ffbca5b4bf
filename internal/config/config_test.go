package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		KeyResultsBucket:   "results",
		KeyCredentialsFile: "/secrets/creds.json",
		KeyScopes:          "https://www.googleapis.com/auth/cloud-vision",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ResultsKey != "data" {
		t.Errorf("ResultsKey = %q, want data", cfg.ResultsKey)
	}
	if cfg.ArchiveBucket != "results" {
		t.Errorf("ArchiveBucket = %q, want results bucket", cfg.ArchiveBucket)
	}
	if cfg.ArchivePrefix != "archive/data_" || cfg.ArchiveSuffix != ".json" {
		t.Errorf("archive naming = %q..%q", cfg.ArchivePrefix, cfg.ArchiveSuffix)
	}
	if cfg.VisionMaxResults != 50 || cfg.JPEGQuality != 90 || cfg.MaxImageDimension != 0 {
		t.Errorf("unexpected numeric defaults: %+v", cfg)
	}
	if cfg.MaxImageBytes != 20<<20 {
		t.Errorf("MaxImageBytes = %d", cfg.MaxImageBytes)
	}
	if cfg.RetryMaxAttempts != 5 || cfg.RetryBaseDelay != 500*time.Millisecond || cfg.RetryMaxDelay != 8*time.Second {
		t.Errorf("unexpected retry defaults: %d %v %v", cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	}

	pc := cfg.PipelineConfig()
	if pc.Destination.String() != "results/data" {
		t.Errorf("destination = %s", pc.Destination)
	}
	if pc.Retry.MaxAttempts != 5 || pc.Normalize.Quality != 90 {
		t.Errorf("pipeline config = %+v", pc)
	}

	ao := cfg.AuthOptions([]string{"x"})
	if ao.FilePath != "/secrets/creds.json" || len(ao.Scopes) != 1 || ao.AcceptedScopes[0] != "x" {
		t.Errorf("auth options = %+v", ao)
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		KeyResultsBucket:    "results",
		KeyResultsKey:       "current.json",
		KeyArchiveBucket:    "history",
		KeyArchivePrefix:    "old/",
		KeyCredentialsJSON:  "e30=",
		KeyScopes:           "a, b",
		KeyVisionMaxResults: "10",
		KeyJPEGQuality:      "75",
		KeyRetryMaxAttempts: "2",
		KeyRetryBaseDelayMS: "100",
		KeyRetryMaxDelayMS:  "250",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Destination().Key != "current.json" {
		t.Errorf("key = %q", cfg.Destination().Key)
	}
	ao := cfg.ArchiveOptions()
	if ao.Bucket != "history" || ao.Prefix != "old/" || ao.Suffix != ".json" {
		t.Errorf("archive options = %+v", ao)
	}
	if len(cfg.Scopes) != 2 {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
	if cfg.VisionMaxResults != 10 || cfg.JPEGQuality != 75 || cfg.RetryMaxAttempts != 2 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RetryBaseDelay != 100*time.Millisecond || cfg.RetryMaxDelay != 250*time.Millisecond {
		t.Errorf("retry delays = %v %v", cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	}
}

func TestFromLookup_MissingKeys(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{}))
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if len(cerr.Missing) != 3 {
		t.Errorf("Missing = %v, want bucket, credentials and scopes", cerr.Missing)
	}
	for _, key := range []string{KeyResultsBucket, KeyCredentialsFile, KeyScopes} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestFromLookup_SSMParamSatisfiesCredentials(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		KeyResultsBucket:       "results",
		KeyCredentialsSSMParam: "/vision/credentials",
		KeyScopes:              "s",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFromLookup_InvalidNumbers(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		KeyResultsBucket:    "results",
		KeyCredentialsFile:  "f",
		KeyScopes:           "s",
		KeyJPEGQuality:      "high",
		KeyRetryMaxAttempts: "-1",
	}))
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if len(cerr.Invalid) != 2 {
		t.Errorf("Invalid = %v", cerr.Invalid)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv(KeyResultsBucket, "env-bucket")
	t.Setenv(KeyCredentialsFile, "creds.json")
	t.Setenv(KeyScopes, "scope")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ResultsBucket != "env-bucket" {
		t.Errorf("ResultsBucket = %q", cfg.ResultsBucket)
	}
	if cfg.Summary()["destination"] != "env-bucket/data" {
		t.Errorf("summary = %v", cfg.Summary())
	}
}
