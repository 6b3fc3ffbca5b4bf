package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=vision-archiver"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements Store on Amazon S3 (or an S3-compatible endpoint).
type S3Store struct {
	client S3API
}

// NewS3Store wraps an S3 client.
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

// Exists issues a HeadObject and maps NotFound to false.
func (s *S3Store) Exists(ctx context.Context, loc Location) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &loc.Bucket,
		Key:    &loc.Key,
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("S3 HeadObject %s: %w", loc, err)
	}
	return true, nil
}

// Open issues a GetObject and returns its body.
func (s *S3Store) Open(ctx context.Context, loc Location) (io.ReadCloser, error) {
	log.Debug().Str("bucket", loc.Bucket).Str("key", loc.Key).Msg("Reading from S3")
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &loc.Bucket,
		Key:    &loc.Key,
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("S3 GetObject %s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("S3 GetObject %s: %w", loc, err)
	}
	return result.Body, nil
}

// Put uploads data with the project cost-allocation tag.
func (s *S3Store) Put(ctx context.Context, loc Location, data []byte, contentType string) error {
	start := time.Now()
	tagging := projectTag
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &loc.Bucket,
		Key:         &loc.Key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		Tagging:     &tagging,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", loc, err)
	}
	log.Debug().Str("bucket", loc.Bucket).Str("key", loc.Key).Int("size", len(data)).Dur("duration", time.Since(start)).Msg("Object written to S3")
	return nil
}

// Copy performs a server-side CopyObject. S3 copies are atomic for objects
// up to 5 GB, which covers annotation records by a wide margin.
func (s *S3Store) Copy(ctx context.Context, src, dst Location) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &dst.Bucket,
		Key:        &dst.Key,
		CopySource: aws.String(copySource(src)),
	})
	if err != nil {
		return fmt.Errorf("S3 CopyObject %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Delete removes the object. S3 DeleteObject succeeds on missing keys.
func (s *S3Store) Delete(ctx context.Context, loc Location) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &loc.Bucket,
		Key:    &loc.Key,
	})
	if err != nil {
		return fmt.Errorf("S3 DeleteObject %s: %w", loc, err)
	}
	return nil
}

// copySource builds the URL-encoded bucket/key value CopyObject expects.
func copySource(loc Location) string {
	segments := strings.Split(loc.Key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return loc.Bucket + "/" + strings.Join(segments, "/")
}

func isS3NotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
