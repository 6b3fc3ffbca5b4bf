package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore implements Store on a local directory tree:
// <root>/<bucket>/<key>.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates the root directory if needed.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// path resolves loc under the root, rejecting traversal outside it.
func (fs *FilesystemStore) path(loc Location) (string, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return "", fmt.Errorf("invalid location %q: bucket and key are required", loc.String())
	}
	root := filepath.Clean(fs.root)
	p := filepath.Join(root, loc.Bucket, filepath.FromSlash(loc.Key))
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid location %q: path traversal detected", loc.String())
	}
	return p, nil
}

// Exists stats the file.
func (fs *FilesystemStore) Exists(ctx context.Context, loc Location) (bool, error) {
	p, err := fs.path(loc)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return !info.IsDir(), nil
}

// Open opens the file for reading.
func (fs *FilesystemStore) Open(ctx context.Context, loc Location) (io.ReadCloser, error) {
	p, err := fs.path(loc)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Put writes to a temp file in the target directory and renames it into
// place, so readers never observe a half-written object.
func (fs *FilesystemStore) Put(ctx context.Context, loc Location, data []byte, contentType string) error {
	p, err := fs.path(loc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Copy reads src fully and writes it to dst.
func (fs *FilesystemStore) Copy(ctx context.Context, src, dst Location) error {
	data, err := ReadAll(ctx, fs, src)
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if err := fs.Put(ctx, dst, data, ""); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Delete removes the file; a missing file is not an error.
func (fs *FilesystemStore) Delete(ctx context.Context, loc Location) error {
	p, err := fs.path(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
