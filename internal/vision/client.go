// Package vision calls the Google Cloud Vision images:annotate endpoint and
// maps its text and label hits into annotation records.
//
// The client makes exactly one remote call per Annotate. Failures are
// classified as transient or fatal in ServiceError; retries belong to the
// caller.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fpang/vision-archiver/internal/auth"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"
)

const (
	// DefaultEndpoint is the public Vision API base URL.
	DefaultEndpoint = "https://vision.googleapis.com/"

	// defaultTimeout is the HTTP client timeout for one annotate call.
	defaultTimeout = 30 * time.Second
)

// Scopes lists the OAuth2 scopes the Vision API honours.
func Scopes() []string {
	return []string{visionapi.CloudVisionScope, visionapi.CloudPlatformScope}
}

// Client annotates images through the Vision REST API.
type Client struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API base URL (emulators, tests).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint == "" {
			return
		}
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		c.endpoint = endpoint
	}
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTransport sets the base round tripper under the OAuth2 transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// NewClient creates a Vision client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Annotate sends one image with the requested features and returns the hits
// in service order. maxResults caps each feature.
func (c *Client) Annotate(ctx context.Context, creds *auth.Credentials, image []byte, features []FeatureKind, maxResults int) (*Annotations, error) {
	if creds == nil || creds.TokenSource() == nil {
		return nil, errors.New("vision annotate: credentials are required")
	}

	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: creds.TokenSource(),
			Base:   c.transport,
		},
	}
	svc, err := visionapi.NewService(ctx, option.WithHTTPClient(hc), option.WithEndpoint(c.endpoint))
	if err != nil {
		return nil, &ServiceError{Message: "create service", Err: err}
	}

	feats := make([]*visionapi.Feature, 0, len(features))
	for _, f := range features {
		feats = append(feats, &visionapi.Feature{Type: string(f), MaxResults: int64(maxResults)})
	}
	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image:    &visionapi.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: feats,
		}},
	}

	start := time.Now()
	log.Debug().
		Int("image_bytes", len(image)).
		Int("features", len(feats)).
		Int("max_results", maxResults).
		Msg("Calling Vision images:annotate")

	resp, err := svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		se := classifyError(err)
		log.Warn().
			Err(err).
			Int("status", se.StatusCode).
			Bool("transient", se.Transient).
			Dur("duration", time.Since(start)).
			Msg("Vision annotate call failed")
		return nil, se
	}

	if len(resp.Responses) == 0 {
		return nil, &ServiceError{
			StatusCode: http.StatusOK,
			Message:    "response contained no entries",
		}
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		se := statusError(r.Error.Code, r.Error.Message)
		log.Warn().
			Str("code", se.Code).
			Str("message", se.Message).
			Bool("transient", se.Transient).
			Msg("Vision returned per-image error")
		return nil, se
	}

	out := &Annotations{
		Text:   make([]TextAnnotation, 0, len(r.TextAnnotations)),
		Labels: make([]LabelAnnotation, 0, len(r.LabelAnnotations)),
	}
	for _, t := range r.TextAnnotations {
		out.Text = append(out.Text, TextAnnotation{Text: t.Description})
	}
	for _, l := range r.LabelAnnotations {
		out.Labels = append(out.Labels, LabelAnnotation{Label: l.Description, Confidence: l.Score})
	}

	log.Debug().
		Int("text_hits", len(out.Text)).
		Int("label_hits", len(out.Labels)).
		Dur("duration", time.Since(start)).
		Msg("Vision annotate complete")

	return out, nil
}
