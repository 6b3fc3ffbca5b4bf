package pipeline

import (
	"bytes"
	"context"
	"io"
)

// ContentHandle dereferences an event's object content.
type ContentHandle interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Event is one storage-change notification.
type Event struct {
	// Name is the source identity recorded as processed_image.
	Name string
	// Size is the declared byte size; zero means empty.
	Size int64
	// URI is a diagnostic locator such as s3://bucket/key.
	URI     string
	Content ContentHandle
}

// BytesContent is a ContentHandle over an in-memory body.
type BytesContent []byte

// Open returns a reader over the bytes.
func (b BytesContent) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// BytesEvent builds an event for content already in memory.
func BytesEvent(name, uri string, data []byte) Event {
	return Event{Name: name, Size: int64(len(data)), URI: uri, Content: BytesContent(data)}
}
