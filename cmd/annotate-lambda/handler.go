package main

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/pipeline"
)

type processor interface {
	Process(ctx context.Context, ev pipeline.Event) (*pipeline.Outcome, error)
	Destination() blobstore.Location
}

type eventHandler struct {
	proc          processor
	store         blobstore.Store
	archiveBucket string
	archivePrefix string
	coldStart     bool
}

func newEventHandler(proc processor, store blobstore.Store, archiveBucket, archivePrefix string) *eventHandler {
	return &eventHandler{
		proc:          proc,
		store:         store,
		archiveBucket: archiveBucket,
		archivePrefix: archivePrefix,
		coldStart:     true,
	}
}

// handle processes every record of the batch and returns every failure
// joined, so the delivery retry policy decides whether to re-invoke.
func (h *eventHandler) handle(ctx context.Context, s3Event events.S3Event) error {
	if h.coldStart {
		h.coldStart = false
		log.Info().Str("function", "annotate-lambda").Msg("Cold start, first invocation")
	}

	var errs []error
	for _, record := range s3Event.Records {
		ev, ok := h.toEvent(record)
		if !ok {
			continue
		}
		if _, err := h.proc.Process(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *eventHandler) toEvent(record events.S3EventRecord) (pipeline.Event, bool) {
	bucket := record.S3.Bucket.Name
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		log.Warn().Err(err).Str("key", record.S3.Object.Key).Msg("Using raw object key")
		key = record.S3.Object.Key
	}
	loc := blobstore.Location{Bucket: bucket, Key: key}

	if h.skip(loc) {
		log.Debug().Str("location", loc.String()).Msg("Skipping generated object")
		return pipeline.Event{}, false
	}
	if strings.HasSuffix(key, "/") {
		log.Debug().Str("location", loc.String()).Msg("Skipping folder marker")
		return pipeline.Event{}, false
	}

	return pipeline.Event{
		Name:    key,
		Size:    record.S3.Object.Size,
		URI:     "s3://" + loc.String(),
		Content: blobstore.Handle{Store: h.store, Location: loc},
	}, true
}

// skip reports whether loc is the record or one of its archives.
func (h *eventHandler) skip(loc blobstore.Location) bool {
	if loc == h.proc.Destination() {
		return true
	}
	return loc.Bucket == h.archiveBucket && strings.HasPrefix(loc.Key, h.archivePrefix)
}
