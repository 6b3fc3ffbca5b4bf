package vision

import (
	"encoding/json"
	"time"
)

// FeatureKind is a Vision API feature type.
type FeatureKind string

const (
	TextDetection  FeatureKind = "TEXT_DETECTION"
	LabelDetection FeatureKind = "LABEL_DETECTION"
)

// DefaultFeatures is requested on every ingest.
var DefaultFeatures = []FeatureKind{TextDetection, LabelDetection}

// DefaultMaxResults caps hits per feature.
const DefaultMaxResults = 50

// TextAnnotation is one detected text span. The first entry of a response
// is the full text block.
type TextAnnotation struct {
	Text string `json:"text"`
}

// LabelAnnotation is one classification label; Confidence is the service
// score, passed through unmodified.
type LabelAnnotation struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Annotations holds the hits for one image, in service order.
type Annotations struct {
	Text   []TextAnnotation
	Labels []LabelAnnotation
}

// Result is the persisted annotation record.
type Result struct {
	TextAnnotations  []TextAnnotation  `json:"text_annotations"`
	LabelAnnotations []LabelAnnotation `json:"label_annotations"`
	ProcessedImage   string            `json:"processed_image"`
	ProcessedAt      time.Time         `json:"processed_at"`
}

// NewResult builds the record for a processed image. Missing lists become
// empty so they serialize as [].
func NewResult(name string, a *Annotations, at time.Time) *Result {
	r := &Result{
		TextAnnotations:  []TextAnnotation{},
		LabelAnnotations: []LabelAnnotation{},
		ProcessedImage:   name,
		ProcessedAt:      at.UTC(),
	}
	if a != nil {
		if a.Text != nil {
			r.TextAnnotations = a.Text
		}
		if a.Labels != nil {
			r.LabelAnnotations = a.Labels
		}
	}
	return r
}

// Marshal encodes the record as two-space indented JSON.
func (r *Result) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
