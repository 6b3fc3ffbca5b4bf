package metrics

import (
	"io"
	"os"

	"github.com/fpang/vision-archiver/internal/pipeline"
)

// EMFObserver emits one EMF line per pipeline invocation.
type EMFObserver struct {
	namespace string
	out       io.Writer
}

var _ pipeline.Observer = (*EMFObserver)(nil)

// NewEMFObserver writes to stdout under Namespace.
func NewEMFObserver() *EMFObserver {
	return &EMFObserver{namespace: Namespace, out: os.Stdout}
}

// Observe implements pipeline.Observer.
func (o *EMFObserver) Observe(r pipeline.Report) {
	outcome := "published"
	if r.State == pipeline.StateFailed {
		outcome = r.Kind
	}

	rec := NewWithWriter(o.namespace, o.out).
		Dimension("Outcome", outcome).
		Metric("InvocationMs", float64(r.Duration.Milliseconds()), UnitMilliseconds).
		Metric("ImageBytes", float64(r.Size), UnitBytes).
		Metric("AnnotateAttempts", float64(r.AnnotateAttempts), UnitCount).
		Metric("PublishAttempts", float64(r.PublishAttempts), UnitCount).
		Count("Invocations").
		Property("runId", r.RunID).
		Property("object", r.Object)
	if r.Archived {
		rec.Count("RecordsArchived")
	}
	rec.Flush()
}
