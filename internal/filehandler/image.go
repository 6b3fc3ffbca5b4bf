package filehandler

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog"
)

// ImageMetadata is the EXIF summary logged alongside an ingest.
// Normalization strips EXIF from the annotated payload, so this is the only
// place camera details survive.
type ImageMetadata struct {
	Latitude  float64
	Longitude float64
	HasGPS    bool

	DateTaken time.Time
	HasDate   bool

	CameraMake  string
	CameraModel string
}

// ExtractImageMetadata reads EXIF from raw image bytes.
// Priority for the capture date: DateTimeOriginal > CreateDate > ModifyDate.
func ExtractImageMetadata(raw []byte) (meta *ImageMetadata, err error) {
	// imagemeta can panic on truncated IFDs.
	defer func() {
		if r := recover(); r != nil {
			meta, err = nil, fmt.Errorf("EXIF decoder panic: %v", r)
		}
	}()

	exifData, err := imagemeta.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	meta = &ImageMetadata{}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		meta.Latitude = gps.Latitude()
		meta.Longitude = gps.Longitude()
		meta.HasGPS = true
	}

	switch {
	case !exifData.DateTimeOriginal().IsZero():
		meta.DateTaken, meta.HasDate = exifData.DateTimeOriginal(), true
	case !exifData.CreateDate().IsZero():
		meta.DateTaken, meta.HasDate = exifData.CreateDate(), true
	case !exifData.ModifyDate().IsZero():
		meta.DateTaken, meta.HasDate = exifData.ModifyDate(), true
	}

	meta.CameraMake = strings.TrimSpace(exifData.Make)
	meta.CameraModel = strings.TrimSpace(exifData.Model)
	return meta, nil
}

// MarshalZerologObject lets the summary be attached with Event.Object.
func (m *ImageMetadata) MarshalZerologObject(e *zerolog.Event) {
	if m.CameraMake != "" || m.CameraModel != "" {
		e.Str("camera", strings.TrimSpace(m.CameraMake+" "+m.CameraModel))
	}
	if m.HasDate {
		e.Time("taken", m.DateTaken)
	}
	if m.HasGPS {
		e.Str("gps", CoordinatesToDMS(m.Latitude, m.Longitude))
	}
}
