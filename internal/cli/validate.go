package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fpang/vision-archiver/internal/auth"
	"github.com/fpang/vision-archiver/internal/config"
	"github.com/fpang/vision-archiver/internal/filehandler"
	"github.com/fpang/vision-archiver/internal/pipeline"
)

// ResolveImagePath checks that path is a regular file with a supported
// image extension and returns its absolute form.
func ResolveImagePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("access %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); !filehandler.IsImage(ext) {
		return "", fmt.Errorf("unsupported image extension %q", ext)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// Describe turns a failure into a one-line hint for the terminal.
func Describe(err error) string {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return "Configuration incomplete: " + cfgErr.Error() + ". Check your environment or .env file"
	}

	var credErr *auth.CredentialError
	if errors.As(err, &credErr) {
		switch credErr.Reason {
		case auth.ReasonNoSource:
			return "No Google credentials configured. Set GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE"
		case auth.ReasonScopeMismatch:
			return "GOOGLE_SCOPES does not include a scope accepted by the Vision API"
		default:
			return "Google credentials could not be loaded: " + credErr.Message
		}
	}

	switch pipeline.KindOf(err) {
	case pipeline.KindValidation:
		return "The input was rejected: " + err.Error()
	case pipeline.KindDecode:
		return "The file is not a decodable image"
	case pipeline.KindAnnotation:
		return "The Vision API call failed. Try again later"
	case pipeline.KindArchive:
		return "The record could not be published to the store"
	case pipeline.KindConfiguration:
		return "Configuration error: " + err.Error()
	default:
		return "Unexpected failure: " + err.Error()
	}
}
