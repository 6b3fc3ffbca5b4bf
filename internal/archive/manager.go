// Package archive publishes annotation records to a fixed destination while
// keeping every superseded record as a timestamp-keyed archive object.
//
// Publish is copy-then-delete-then-write. There is no lease on the
// destination: two concurrent publishes can interleave and one archive may
// capture a record the other wrote. Callers that need ordering must add an
// external serialization point.
package archive

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fpang/vision-archiver/internal/blobstore"
	"github.com/fpang/vision-archiver/internal/vision"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPrefix = "archive/data_"
	DefaultSuffix = ".json"

	// timestampLayout is UTC yyyyMMddHHmmss.
	timestampLayout = "20060102150405"

	// maxKeyProbes bounds the disambiguating suffix search.
	maxKeyProbes = 1000

	contentTypeJSON = "application/json"
)

// Step names the publish stage an Error occurred in.
type Step string

const (
	StepCheck  Step = "check"
	StepKey    Step = "archive_key"
	StepCopy   Step = "copy"
	StepEncode Step = "encode"
	StepWrite  Step = "write"
)

// Error is a failed publish. Nothing after Step was attempted.
type Error struct {
	Step     Step
	Location blobstore.Location
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Step, e.Location, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options configures a Manager.
type Options struct {
	// Bucket holds archives. Empty means the destination's bucket.
	Bucket string
	Prefix string
	Suffix string
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Publication describes a completed publish.
type Publication struct {
	Destination blobstore.Location
	// ArchivedTo is nil when the destination was empty.
	ArchivedTo *blobstore.Location
	ArchivedAt time.Time
	Bytes      int
	// StaleDeleteFailed reports that the superseded record could not be
	// removed before the overwrite.
	StaleDeleteFailed bool
}

// Manager implements the publish procedure against a blob store.
type Manager struct {
	store blobstore.Store
	opts  Options

	mu        sync.Mutex
	lastStamp string
	used      map[blobstore.Location]struct{}
}

// NewManager creates a Manager, filling defaults.
func NewManager(store blobstore.Store, opts Options) *Manager {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store: store,
		opts:  opts,
		used:  make(map[blobstore.Location]struct{}),
	}
}

// Prefix returns the archive key prefix.
func (m *Manager) Prefix() string {
	return m.opts.Prefix
}

// Bucket returns the archive bucket for a destination.
func (m *Manager) Bucket(dest blobstore.Location) string {
	if m.opts.Bucket != "" {
		return m.opts.Bucket
	}
	return dest.Bucket
}

// Publish writes payload to dest, archiving any record already there.
// A failed copy aborts before the destination is touched. A failed delete
// is logged and the write proceeds, since the archive already exists.
func (m *Manager) Publish(ctx context.Context, dest blobstore.Location, payload *vision.Result) (*Publication, error) {
	start := time.Now()
	pub := &Publication{Destination: dest}

	data, err := payload.Marshal()
	if err != nil {
		return nil, &Error{Step: StepEncode, Location: dest, Err: err}
	}

	exists, err := m.store.Exists(ctx, dest)
	if err != nil {
		return nil, &Error{Step: StepCheck, Location: dest, Err: err}
	}

	if exists {
		at := m.opts.Now().UTC()
		archiveLoc, err := m.archiveLocation(ctx, m.Bucket(dest), at)
		if err != nil {
			return nil, &Error{Step: StepKey, Location: dest, Err: err}
		}

		if err := m.store.Copy(ctx, dest, archiveLoc); err != nil {
			m.release(archiveLoc)
			return nil, &Error{Step: StepCopy, Location: archiveLoc, Err: err}
		}
		pub.ArchivedTo = &archiveLoc
		pub.ArchivedAt = at

		log.Info().
			Str("destination", dest.String()).
			Str("archive", archiveLoc.String()).
			Msg("Archived previous record")

		if err := m.store.Delete(ctx, dest); err != nil {
			pub.StaleDeleteFailed = true
			log.Warn().
				Err(err).
				Str("destination", dest.String()).
				Str("archive", archiveLoc.String()).
				Msg("Failed to delete superseded record, overwriting in place")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &Error{Step: StepWrite, Location: dest, Err: err}
	}
	if err := m.store.Put(ctx, dest, data, contentTypeJSON); err != nil {
		return nil, &Error{Step: StepWrite, Location: dest, Err: err}
	}
	pub.Bytes = len(data)

	log.Debug().
		Str("destination", dest.String()).
		Int("bytes", len(data)).
		Bool("archived", pub.ArchivedTo != nil).
		Dur("duration", time.Since(start)).
		Msg("Record published")

	return pub, nil
}

// archiveLocation picks <prefix><stamp><suffix>, or <prefix><stamp>-N<suffix>
// when that key exists in the store or was already handed out by this
// manager. The returned key is reserved until the stamp changes.
func (m *Manager) archiveLocation(ctx context.Context, bucket string, at time.Time) (blobstore.Location, error) {
	stamp := at.Format(timestampLayout)

	m.mu.Lock()
	if stamp != m.lastStamp {
		m.lastStamp = stamp
		m.used = make(map[blobstore.Location]struct{})
	}
	m.mu.Unlock()

	for n := 0; n < maxKeyProbes; n++ {
		key := m.opts.Prefix + stamp + m.opts.Suffix
		if n > 0 {
			key = m.opts.Prefix + stamp + "-" + strconv.Itoa(n) + m.opts.Suffix
		}
		loc := blobstore.Location{Bucket: bucket, Key: key}

		if !m.reserve(loc) {
			continue
		}
		exists, err := m.store.Exists(ctx, loc)
		if err != nil {
			m.release(loc)
			return blobstore.Location{}, err
		}
		if !exists {
			return loc, nil
		}
	}
	return blobstore.Location{}, fmt.Errorf("no free archive key for stamp %s after %d probes", stamp, maxKeyProbes)
}

func (m *Manager) reserve(loc blobstore.Location) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.used[loc]; taken {
		return false
	}
	m.used[loc] = struct{}{}
	return true
}

func (m *Manager) release(loc blobstore.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.used, loc)
}
