// Package auth resolves the Google service credentials used to call the
// Vision API. Credentials come from an inline base64 value or a file on
// disk and are cached for the life of the process once resolved.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Source names where credentials were loaded from.
type Source string

const (
	SourceInline Source = "inline"
	SourceFile   Source = "file"
	SourceStatic Source = "static"
)

// Credentials is resolved credential material scoped for one service.
// It is never persisted and must never be logged.
type Credentials struct {
	Source      Source
	Scopes      []string
	ProjectID   string
	ClientEmail string

	tokenSource oauth2.TokenSource
}

// TokenSource returns the OAuth2 token source for the credentials.
func (c *Credentials) TokenSource() oauth2.TokenSource {
	return c.tokenSource
}

// HTTPClient returns an HTTP client that attaches bearer tokens.
func (c *Credentials) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.tokenSource)
}

// NewStaticCredentials wraps an existing token source, for local emulators
// and tests.
func NewStaticCredentials(ts oauth2.TokenSource, scopes ...string) *Credentials {
	return &Credentials{Source: SourceStatic, Scopes: scopes, tokenSource: ts}
}

// Options configures a Resolver.
type Options struct {
	// InlineEncoded is base64-packed credential JSON. Tried first.
	InlineEncoded string
	// FilePath points to a credential JSON file. Tried second.
	FilePath string
	// Scopes are requested for the issued tokens.
	Scopes []string
	// AcceptedScopes lists scopes the consuming service honours. When set,
	// Scopes must contain at least one of them.
	AcceptedScopes []string
}

// Resolver loads credentials from the configured sources.
// Safe for concurrent use; the first success is cached.
type Resolver struct {
	opts     Options
	readFile func(string) ([]byte, error)

	mu     sync.Mutex
	cached *Credentials
}

// NewResolver creates a resolver for opts.
func NewResolver(opts Options) *Resolver {
	return &Resolver{opts: opts, readFile: os.ReadFile}
}

// Resolve returns cached credentials or loads them.
// Priority order:
//  1. inline base64 value
//  2. credentials file
//
// If the inline value fails to decode or validate, the file is attempted.
// Failures are not cached.
func (r *Resolver) Resolve(ctx context.Context) (*Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, nil
	}

	if err := checkScopes(r.opts.Scopes, r.opts.AcceptedScopes); err != nil {
		return nil, err
	}

	if r.opts.InlineEncoded == "" && r.opts.FilePath == "" {
		return nil, &CredentialError{
			Reason:  ReasonNoSource,
			Message: "no credential source configured; set GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE",
		}
	}

	var failures []error

	if r.opts.InlineEncoded != "" {
		creds, err := r.fromInline(ctx)
		if err == nil {
			log.Debug().Str("source", string(SourceInline)).Str("project", creds.ProjectID).Msg("Using credentials from inline value")
			r.cached = creds
			return creds, nil
		}
		log.Warn().Err(err).Msg("Inline credentials rejected")
		failures = append(failures, fmt.Errorf("inline: %w", err))
	}

	if r.opts.FilePath != "" {
		creds, err := r.fromFile(ctx)
		if err == nil {
			log.Debug().Str("source", string(SourceFile)).Str("project", creds.ProjectID).Msg("Using credentials from file")
			r.cached = creds
			return creds, nil
		}
		log.Warn().Err(err).Str("file", r.opts.FilePath).Msg("Credentials file rejected")
		failures = append(failures, fmt.Errorf("file %s: %w", r.opts.FilePath, err))
	}

	return nil, &CredentialError{
		Reason:  ReasonInvalid,
		Message: "no credential source produced valid credentials",
		Err:     errors.Join(failures...),
	}
}

func (r *Resolver) fromInline(ctx context.Context) (*Credentials, error) {
	raw, err := decodeInline(r.opts.InlineEncoded)
	if err != nil {
		return nil, err
	}
	return build(ctx, raw, SourceInline, r.opts.Scopes)
}

func (r *Resolver) fromFile(ctx context.Context) (*Credentials, error) {
	raw, err := r.readFile(r.opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return build(ctx, raw, SourceFile, r.opts.Scopes)
}

func decodeInline(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(value)
	}
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return raw, nil
}

func build(ctx context.Context, raw []byte, source Source, scopes []string) (*Credentials, error) {
	key, err := parseKeyFile(raw)
	if err != nil {
		return nil, err
	}
	gc, err := google.CredentialsFromJSON(ctx, raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	projectID := gc.ProjectID
	if projectID == "" {
		projectID = key.ProjectID
	}
	return &Credentials{
		Source:      source,
		Scopes:      append([]string(nil), scopes...),
		ProjectID:   projectID,
		ClientEmail: key.ClientEmail,
		tokenSource: gc.TokenSource,
	}, nil
}

// ParseScopes splits a space- or comma-separated scope list.
func ParseScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func checkScopes(configured, accepted []string) error {
	if len(configured) == 0 {
		return &CredentialError{Reason: ReasonScopeMismatch, Message: "no scopes configured; set GOOGLE_SCOPES"}
	}
	if len(accepted) == 0 {
		return nil
	}
	for _, s := range configured {
		for _, a := range accepted {
			if s == a {
				return nil
			}
		}
	}
	return &CredentialError{
		Reason:  ReasonScopeMismatch,
		Message: fmt.Sprintf("configured scopes %v include none of %v", configured, accepted),
	}
}
