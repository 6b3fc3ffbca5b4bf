// Package cli holds terminal helpers for the vision-ingest command.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/vision-archiver/internal/pipeline"
)

// FormatDurationShort renders d as 850ms, 2.35s or M:SS.
func FormatDurationShort(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		total := int(d.Seconds())
		return fmt.Sprintf("%d:%02d", total/60, total%60)
	}
}

// PrintOutcome writes a human-readable summary of a successful invocation.
func PrintOutcome(w io.Writer, out *pipeline.Outcome) {
	rule := strings.Repeat("-", 44)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run:        %s\n", out.RunID)
	fmt.Fprintf(w, "Image:      %s\n", out.Record.ProcessedImage)
	if out.Publication != nil {
		fmt.Fprintf(w, "Published:  %s\n", out.Publication.Destination)
		if out.Publication.ArchivedTo != nil {
			fmt.Fprintf(w, "Archived:   %s\n", out.Publication.ArchivedTo)
		}
	}
	fmt.Fprintf(w, "Attempts:   annotate %d, publish %d\n", out.AnnotateAttempts, out.PublishAttempts)
	fmt.Fprintf(w, "Elapsed:    %s\n", FormatDurationShort(out.Duration))
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "Labels (%d)\n", len(out.Record.LabelAnnotations))
	for _, l := range out.Record.LabelAnnotations {
		fmt.Fprintf(w, "  %-30s %.2f\n", l.Label, l.Confidence)
	}
	fmt.Fprintf(w, "Text (%d)\n", len(out.Record.TextAnnotations))
	for _, t := range out.Record.TextAnnotations {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(t.Text, "\n", " "))
	}
}
