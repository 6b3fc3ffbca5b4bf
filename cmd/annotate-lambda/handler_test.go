package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/pipeline"
)

type fakeProcessor struct {
	dest   blobstore.Location
	errFor map[string]error
	events []pipeline.Event
	bodies map[string]string
}

func (f *fakeProcessor) Destination() blobstore.Location { return f.dest }

func (f *fakeProcessor) Process(ctx context.Context, ev pipeline.Event) (*pipeline.Outcome, error) {
	f.events = append(f.events, ev)
	rc, err := ev.Content.Open(ctx)
	if err == nil {
		data, _ := io.ReadAll(rc)
		rc.Close()
		if f.bodies == nil {
			f.bodies = make(map[string]string)
		}
		f.bodies[ev.Name] = string(data)
	}
	if err := f.errFor[ev.Name]; err != nil {
		return nil, err
	}
	return &pipeline.Outcome{RunID: "run-" + ev.Name}, nil
}

func s3Record(bucket, key string, size int64) events.S3EventRecord {
	return events.S3EventRecord{
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: bucket},
			Object: events.S3Object{Key: key, Size: size},
		},
	}
}

func newTestHandler(proc *fakeProcessor, store blobstore.Store) *eventHandler {
	return newEventHandler(proc, store, "results", "archive/data_")
}

func TestHandleDecodesKeysAndOpensContent(t *testing.T) {
	store := blobstore.NewMemoryStore()
	src := blobstore.Location{Bucket: "uploads", Key: "holiday photos/cat 1.jpg"}
	if err := store.Put(context.Background(), src, []byte("jpeg"), "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	proc := &fakeProcessor{dest: blobstore.Location{Bucket: "results", Key: "data"}}

	err := newTestHandler(proc, store).handle(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{s3Record("uploads", "holiday+photos/cat+1.jpg", 4)},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(proc.events) != 1 {
		t.Fatalf("got %d events, want 1", len(proc.events))
	}
	ev := proc.events[0]
	if ev.Name != "holiday photos/cat 1.jpg" || ev.Size != 4 {
		t.Errorf("event = %+v", ev)
	}
	if ev.URI != "s3://uploads/holiday photos/cat 1.jpg" {
		t.Errorf("URI = %q", ev.URI)
	}
	if proc.bodies[ev.Name] != "jpeg" {
		t.Errorf("body = %q", proc.bodies[ev.Name])
	}
}

func TestHandleSkipsGeneratedObjects(t *testing.T) {
	proc := &fakeProcessor{dest: blobstore.Location{Bucket: "results", Key: "data"}}
	err := newTestHandler(proc, blobstore.NewMemoryStore()).handle(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{
			s3Record("results", "data", 100),
			s3Record("results", "archive/data_20240501123045.json", 100),
			s3Record("uploads", "folder/", 0),
			s3Record("uploads", "archive/data_not-ours.jpg", 10),
		},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(proc.events) != 1 || proc.events[0].Name != "archive/data_not-ours.jpg" {
		t.Errorf("events = %+v", proc.events)
	}
}

func TestHandleJoinsFailures(t *testing.T) {
	annotateErr := &pipeline.Error{Kind: pipeline.KindAnnotation, Object: "a.jpg", Err: errors.New("unavailable")}
	decodeErr := &pipeline.Error{Kind: pipeline.KindDecode, Object: "b.jpg", Err: errors.New("bad")}
	proc := &fakeProcessor{
		dest:   blobstore.Location{Bucket: "results", Key: "data"},
		errFor: map[string]error{"a.jpg": annotateErr, "b.jpg": decodeErr},
	}

	err := newTestHandler(proc, blobstore.NewMemoryStore()).handle(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{
			s3Record("uploads", "a.jpg", 1),
			s3Record("uploads", "b.jpg", 1),
			s3Record("uploads", "c.jpg", 1),
		},
	})
	if len(proc.events) != 3 {
		t.Errorf("every record should be processed, got %d", len(proc.events))
	}
	if !errors.Is(err, annotateErr) || !errors.Is(err, decodeErr) {
		t.Fatalf("err = %v, want both failures", err)
	}
}

func TestHandleAllSucceed(t *testing.T) {
	proc := &fakeProcessor{dest: blobstore.Location{Bucket: "results", Key: "data"}}
	err := newTestHandler(proc, blobstore.NewMemoryStore()).handle(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{s3Record("uploads", "a.jpg", 1), s3Record("uploads", "b.jpg", 1)},
	})
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
