// Package config reads the process configuration from environment-style
// keys. Only presence and number syntax are checked here; the credential
// material itself is validated by the resolver.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/vision-archiver/internal/archive"
	"github.com/fpang/vision-archiver/internal/auth"
	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/filehandler"
	"github.com/fpang/vision-archiver/internal/pipeline"
	"github.com/fpang/vision-archiver/internal/vision"
)

// Environment keys.
const (
	KeyResultsBucket       = "RESULTS_BUCKET_NAME"
	KeyResultsKey          = "RESULTS_KEY"
	KeyArchiveBucket       = "ARCHIVE_BUCKET_NAME"
	KeyArchivePrefix       = "ARCHIVE_PREFIX"
	KeyArchiveSuffix       = "ARCHIVE_SUFFIX"
	KeyCredentialsJSON     = "GOOGLE_CREDENTIALS_JSON"
	KeyCredentialsFile     = "GOOGLE_CREDENTIALS_FILE"
	KeyCredentialsSSMParam = "GOOGLE_CREDENTIALS_SSM_PARAM"
	KeyScopes              = "GOOGLE_SCOPES"
	KeyVisionEndpoint      = "VISION_ENDPOINT"
	KeyVisionMaxResults    = "VISION_MAX_RESULTS"
	KeyJPEGQuality         = "JPEG_QUALITY"
	KeyMaxImageDimension   = "MAX_IMAGE_DIMENSION"
	KeyMaxImageBytes       = "MAX_IMAGE_BYTES"
	KeyRetryMaxAttempts    = "RETRY_MAX_ATTEMPTS"
	KeyRetryBaseDelayMS    = "RETRY_BASE_DELAY_MS"
	KeyRetryMaxDelayMS     = "RETRY_MAX_DELAY_MS"
	KeyLedgerTable         = "ANNOTATION_LEDGER_TABLE"
	KeyS3EndpointURL       = "S3_ENDPOINT_URL"
	KeyLogLevel            = "LOG_LEVEL"
)

const defaultResultsKey = "data"

// Config is the resolved process configuration.
type Config struct {
	ResultsBucket string
	ResultsKey    string
	ArchiveBucket string
	ArchivePrefix string
	ArchiveSuffix string

	CredentialsJSON     string
	CredentialsFile     string
	CredentialsSSMParam string
	Scopes              []string

	VisionEndpoint    string
	VisionMaxResults  int
	JPEGQuality       int
	MaxImageDimension int
	MaxImageBytes     int64

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	LedgerTable   string
	S3EndpointURL string
	LogLevel      string
}

// Error lists every missing or malformed key.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "configuration: " + strings.Join(parts, "; ")
}

// Load reads the process environment.
func Load() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads configuration through lookup, which reports whether a
// key is set.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	cerr := &Error{}

	intVal := func(key string, def int) int {
		raw := get(key)
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("%s=%q", key, raw))
			return def
		}
		return n
	}

	cfg := &Config{
		ResultsBucket:       get(KeyResultsBucket),
		ResultsKey:          get(KeyResultsKey),
		ArchiveBucket:       get(KeyArchiveBucket),
		ArchivePrefix:       get(KeyArchivePrefix),
		ArchiveSuffix:       get(KeyArchiveSuffix),
		CredentialsJSON:     get(KeyCredentialsJSON),
		CredentialsFile:     get(KeyCredentialsFile),
		CredentialsSSMParam: get(KeyCredentialsSSMParam),
		Scopes:              auth.ParseScopes(get(KeyScopes)),
		VisionEndpoint:      get(KeyVisionEndpoint),
		VisionMaxResults:    intVal(KeyVisionMaxResults, vision.DefaultMaxResults),
		JPEGQuality:         intVal(KeyJPEGQuality, filehandler.DefaultJPEGQuality),
		MaxImageDimension:   intVal(KeyMaxImageDimension, 0),
		MaxImageBytes:       int64(intVal(KeyMaxImageBytes, int(pipeline.DefaultMaxImageBytes))),
		RetryMaxAttempts:    intVal(KeyRetryMaxAttempts, 5),
		RetryBaseDelay:      time.Duration(intVal(KeyRetryBaseDelayMS, 500)) * time.Millisecond,
		RetryMaxDelay:       time.Duration(intVal(KeyRetryMaxDelayMS, 8000)) * time.Millisecond,
		LedgerTable:         get(KeyLedgerTable),
		S3EndpointURL:       get(KeyS3EndpointURL),
		LogLevel:            get(KeyLogLevel),
	}

	if cfg.ResultsKey == "" {
		cfg.ResultsKey = defaultResultsKey
	}
	if cfg.ArchiveBucket == "" {
		cfg.ArchiveBucket = cfg.ResultsBucket
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = archive.DefaultPrefix
	}
	if cfg.ArchiveSuffix == "" {
		cfg.ArchiveSuffix = archive.DefaultSuffix
	}

	if cfg.ResultsBucket == "" {
		cerr.Missing = append(cerr.Missing, KeyResultsBucket)
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" && cfg.CredentialsSSMParam == "" {
		cerr.Missing = append(cerr.Missing, KeyCredentialsJSON+" or "+KeyCredentialsFile+" or "+KeyCredentialsSSMParam)
	}
	if len(cfg.Scopes) == 0 {
		cerr.Missing = append(cerr.Missing, KeyScopes)
	}
	if cfg.RetryMaxAttempts == 0 {
		cerr.Invalid = append(cerr.Invalid, KeyRetryMaxAttempts+"=0")
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return nil, cerr
	}
	return cfg, nil
}

// Destination is the fixed record location.
func (c *Config) Destination() blobstore.Location {
	return blobstore.Location{Bucket: c.ResultsBucket, Key: c.ResultsKey}
}

// ArchiveOptions configures the archive manager.
func (c *Config) ArchiveOptions() archive.Options {
	return archive.Options{Bucket: c.ArchiveBucket, Prefix: c.ArchivePrefix, Suffix: c.ArchiveSuffix}
}

// AuthOptions configures the credential resolver for a service that
// honours accepted scopes.
func (c *Config) AuthOptions(accepted []string) auth.Options {
	return auth.Options{
		InlineEncoded:  c.CredentialsJSON,
		FilePath:       c.CredentialsFile,
		Scopes:         c.Scopes,
		AcceptedScopes: accepted,
	}
}

// PipelineConfig is the orchestrator's static configuration.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Destination: c.Destination(),
		Features:    vision.DefaultFeatures,
		MaxResults:  c.VisionMaxResults,
		Normalize: filehandler.Options{
			Quality:      c.JPEGQuality,
			MaxDimension: c.MaxImageDimension,
		},
		MaxImageBytes: c.MaxImageBytes,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: c.RetryMaxAttempts,
			BaseDelay:   c.RetryBaseDelay,
			MaxDelay:    c.RetryMaxDelay,
		},
	}
}

// Summary lists non-secret settings for the startup log.
func (c *Config) Summary() map[string]string {
	return map[string]string{
		"destination":     c.Destination().String(),
		"archive":         c.ArchiveBucket + "/" + c.ArchivePrefix + "<ts>" + c.ArchiveSuffix,
		"scopes":          strings.Join(c.Scopes, " "),
		"vision_endpoint": c.VisionEndpoint,
		"max_results":     strconv.Itoa(c.VisionMaxResults),
		"jpeg_quality":    strconv.Itoa(c.JPEGQuality),
		"max_dimension":   strconv.Itoa(c.MaxImageDimension),
		"max_bytes":       strconv.FormatInt(c.MaxImageBytes, 10),
		"retry":           fmt.Sprintf("%d attempts, %s..%s", c.RetryMaxAttempts, c.RetryBaseDelay, c.RetryMaxDelay),
	}
}
