// Package pipeline turns one storage-change event into one published
// annotation record.
//
// An invocation moves RECEIVED → VALIDATED → CREDENTIALED → NORMALIZED →
// ANNOTATED → PUBLISHED, or stops in FAILED with a classified *Error.
// Only the annotate and publish steps are retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fpang/vision-archiver/internal/archive"
	"github.com/fpang/vision-archiver/internal/auth"
	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/filehandler"
	"github.com/fpang/vision-archiver/internal/vision"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxImageBytes bounds how much of an object is read.
const DefaultMaxImageBytes int64 = 20 << 20

// CredentialSource resolves annotation credentials.
type CredentialSource interface {
	Resolve(ctx context.Context) (*auth.Credentials, error)
}

// Annotator calls the annotation service once per invocation.
type Annotator interface {
	Annotate(ctx context.Context, creds *auth.Credentials, image []byte, features []vision.FeatureKind, maxResults int) (*vision.Annotations, error)
}

// Publisher persists a record with archive-on-replace semantics.
type Publisher interface {
	Publish(ctx context.Context, dest blobstore.Location, payload *vision.Result) (*archive.Publication, error)
}

// Ledger records each invocation. Failures are logged, never fatal.
type Ledger interface {
	Record(ctx context.Context, entry LedgerEntry) error
}

// Observer receives one Report per invocation.
type Observer interface {
	Observe(r Report)
}

// LedgerEntry is the audit row for one invocation.
type LedgerEntry struct {
	RunID       string
	Object      string
	URI         string
	Size        int64
	State       State
	Kind        string
	Step        State
	Destination string
	ArchivedTo  string
	TextHits    int
	LabelHits   int
	Attempts    int
	Error       string
	StartedAt   time.Time
	Duration    time.Duration
}

// Report summarizes one invocation for metrics.
type Report struct {
	RunID            string
	Object           string
	Size             int64
	State            State
	Kind             string // empty on success
	Duration         time.Duration
	AnnotateAttempts int
	PublishAttempts  int
	Archived         bool
}

// Config is the static configuration of a pipeline.
type Config struct {
	// Destination is the fixed record location.
	Destination   blobstore.Location
	Features      []vision.FeatureKind
	MaxResults    int
	Normalize     filehandler.Options
	MaxImageBytes int64
	Retry         RetryPolicy
}

// Deps are the collaborators of a pipeline. Ledger and Observer may be nil.
type Deps struct {
	Credentials CredentialSource
	Annotator   Annotator
	Publisher   Publisher
	Ledger      Ledger
	Observer    Observer

	// Now, Sleep and NewRunID default to the real clock, a context-aware
	// timer and UUIDv4.
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	NewRunID func() string
}

// Outcome is a successful invocation.
type Outcome struct {
	RunID            string
	Record           *vision.Result
	Publication      *archive.Publication
	Image            *filehandler.NormalizedImage
	AnnotateAttempts int
	PublishAttempts  int
	Duration         time.Duration
}

// Pipeline runs invocations. Safe for concurrent use.
type Pipeline struct {
	cfg  Config
	deps Deps

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	runID func() string
}

// New validates cfg and deps and fills defaults.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.Destination.Bucket == "" || cfg.Destination.Key == "" {
		return nil, errors.New("pipeline: destination bucket and key are required")
	}
	if deps.Credentials == nil {
		return nil, errors.New("pipeline: credential source is required")
	}
	if deps.Annotator == nil {
		return nil, errors.New("pipeline: annotator is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("pipeline: publisher is required")
	}

	if len(cfg.Features) == 0 {
		cfg.Features = vision.DefaultFeatures
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = vision.DefaultMaxResults
	}
	if cfg.Normalize.Quality == 0 {
		cfg.Normalize.Quality = filehandler.DefaultJPEGQuality
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	p := &Pipeline{cfg: cfg, deps: deps, now: deps.Now, sleep: deps.Sleep, runID: deps.NewRunID}
	if p.now == nil {
		p.now = time.Now
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if p.runID == nil {
		p.runID = uuid.NewString
	}
	return p, nil
}

// Destination returns the configured record location.
func (p *Pipeline) Destination() blobstore.Location {
	return p.cfg.Destination
}

// MaxImageBytes returns the input size limit.
func (p *Pipeline) MaxImageBytes() int64 {
	return p.cfg.MaxImageBytes
}

// invocation carries per-run state for logging and error construction.
type invocation struct {
	ev               Event
	runID            string
	state            State
	start            time.Time
	annotateAttempts int
	publishAttempts  int
}

func (inv *invocation) fail(kind Kind, attempts int, err error) *Error {
	return &Error{
		Kind:     kind,
		Step:     inv.state,
		RunID:    inv.runID,
		Object:   inv.ev.Name,
		URI:      inv.ev.URI,
		Size:     inv.ev.Size,
		Attempts: attempts,
		Err:      err,
	}
}

// Process runs one invocation. Every failure is logged and returned as
// *Error; a panic anywhere below is converted to KindInternal.
func (p *Pipeline) Process(ctx context.Context, ev Event) (out *Outcome, err error) {
	inv := &invocation{ev: ev, runID: p.runID(), state: StateReceived, start: time.Now()}

	log.Info().
		Str("run_id", inv.runID).
		Str("object", ev.Name).
		Str("uri", ev.URI).
		Int64("size", ev.Size).
		Msg("Processing event")

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, inv.fail(KindInternal, 0, fmt.Errorf("panic: %v", r))
		}
		p.finish(ctx, inv, out, err)
	}()

	return p.run(ctx, inv)
}

func (p *Pipeline) run(ctx context.Context, inv *invocation) (*Outcome, error) {
	raw, err := p.read(ctx, inv.ev)
	if err != nil {
		return nil, inv.fail(KindValidation, 0, err)
	}
	inv.state = StateValidated

	creds, err := p.deps.Credentials.Resolve(ctx)
	if err != nil {
		return nil, inv.fail(KindConfiguration, 0, err)
	}
	inv.state = StateCredentialed

	if meta, err := filehandler.ExtractImageMetadata(raw); err == nil {
		log.Debug().Str("run_id", inv.runID).Object("exif", meta).Msg("Source image metadata")
	}

	img, err := filehandler.NormalizeWith(raw, p.cfg.Normalize)
	if err != nil {
		var decErr *filehandler.DecodeError
		if errors.As(err, &decErr) {
			return nil, inv.fail(KindDecode, 0, err)
		}
		return nil, inv.fail(KindInternal, 0, err)
	}
	inv.state = StateNormalized

	var annotations *vision.Annotations
	inv.annotateAttempts, err = p.retry(ctx, "annotate", vision.IsTransient, func() error {
		a, err := p.deps.Annotator.Annotate(ctx, creds, img.Data, p.cfg.Features, p.cfg.MaxResults)
		if err != nil {
			return err
		}
		annotations = a
		return nil
	})
	if err != nil {
		return nil, inv.fail(KindAnnotation, inv.annotateAttempts, err)
	}
	inv.state = StateAnnotated

	record := vision.NewResult(inv.ev.Name, annotations, p.now())

	var pub *archive.Publication
	inv.publishAttempts, err = p.retry(ctx, "publish", retryableStorage, func() error {
		pb, err := p.deps.Publisher.Publish(ctx, p.cfg.Destination, record)
		if err != nil {
			return err
		}
		pub = pb
		return nil
	})
	if err != nil {
		return nil, inv.fail(KindArchive, inv.publishAttempts, err)
	}
	inv.state = StatePublished

	return &Outcome{
		RunID:            inv.runID,
		Record:           record,
		Publication:      pub,
		Image:            img,
		AnnotateAttempts: inv.annotateAttempts,
		PublishAttempts:  inv.publishAttempts,
		Duration:         time.Since(inv.start),
	}, nil
}

// read loads the event content exactly once, bounded by MaxImageBytes.
func (p *Pipeline) read(ctx context.Context, ev Event) ([]byte, error) {
	if ev.Content == nil {
		return nil, ErrNoContent
	}
	if ev.Size == 0 {
		return nil, ErrEmptyInput
	}
	if ev.Size > p.cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, ev.Size, p.cfg.MaxImageBytes)
	}

	rc, err := ev.Content.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, p.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(raw)) > p.cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, p.cfg.MaxImageBytes)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}
	return raw, nil
}

// retryableStorage treats every publish failure as contention except
// cancellation.
func retryableStorage(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// finish logs the outcome and notifies the ledger and observer.
func (p *Pipeline) finish(ctx context.Context, inv *invocation, out *Outcome, err error) {
	duration := time.Since(inv.start)
	report := Report{
		RunID:            inv.runID,
		Object:           inv.ev.Name,
		Size:             inv.ev.Size,
		State:            StatePublished,
		Duration:         duration,
		AnnotateAttempts: inv.annotateAttempts,
		PublishAttempts:  inv.publishAttempts,
	}
	entry := LedgerEntry{
		RunID:       inv.runID,
		Object:      inv.ev.Name,
		URI:         inv.ev.URI,
		Size:        inv.ev.Size,
		State:       StatePublished,
		Step:        inv.state,
		Destination: p.cfg.Destination.String(),
		Attempts:    inv.annotateAttempts + inv.publishAttempts,
		StartedAt:   inv.start.UTC(),
		Duration:    duration,
	}

	if err != nil {
		kind := KindOf(err)
		report.State = StateFailed
		report.Kind = kind.String()
		entry.State = StateFailed
		entry.Kind = kind.String()
		entry.Error = err.Error()

		attempts := 0
		var pe *Error
		if errors.As(err, &pe) {
			attempts = pe.Attempts
		}
		log.Error().
			Err(err).
			Str("run_id", inv.runID).
			Str("object", inv.ev.Name).
			Str("uri", inv.ev.URI).
			Int64("size", inv.ev.Size).
			Str("kind", kind.String()).
			Str("step", string(inv.state)).
			Int("attempts", attempts).
			Dur("duration", duration).
			Msg("Invocation failed")
	} else {
		entry.TextHits = len(out.Record.TextAnnotations)
		entry.LabelHits = len(out.Record.LabelAnnotations)
		if out.Publication != nil && out.Publication.ArchivedTo != nil {
			report.Archived = true
			entry.ArchivedTo = out.Publication.ArchivedTo.String()
		}
		log.Info().
			Str("run_id", inv.runID).
			Str("object", inv.ev.Name).
			Str("destination", p.cfg.Destination.String()).
			Str("archived_to", entry.ArchivedTo).
			Int("text_hits", entry.TextHits).
			Int("label_hits", entry.LabelHits).
			Int("annotate_attempts", inv.annotateAttempts).
			Int("publish_attempts", inv.publishAttempts).
			Dur("duration", duration).
			Msg("Record published")
	}

	if p.deps.Ledger != nil {
		// Detached so a cancelled invocation still leaves an audit row.
		if lerr := p.deps.Ledger.Record(context.WithoutCancel(ctx), entry); lerr != nil {
			log.Warn().Err(lerr).Str("run_id", inv.runID).Msg("Failed to record invocation in ledger")
		}
	}
	if p.deps.Observer != nil {
		p.deps.Observer.Observe(report)
	}
}
