package image

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/processor"
	imagerepo "github.com/aliskhannn/image-storage/internal/repository/image"
	"github.com/aliskhannn/image-storage/internal/storage/file"
)

// DefaultTTL is how long a presigned URL stays valid.
const DefaultTTL = 3600 * time.Second

// objectStore is the internal, server-side object store client.
type objectStore interface {
	Put(ctx context.Context, container, key string, data []byte, contentType string) error
	Delete(ctx context.Context, container, key string) error
	Exists(ctx context.Context, container, key string) (bool, error)
	Get(ctx context.Context, container, key string) (io.ReadCloser, error)
}

// urlSigner is the external client; it only presigns.
type urlSigner interface {
	Sign(ctx context.Context, container, key string, ttl time.Duration) (*url.URL, error)
}

// recordStore persists metadata records.
type recordStore interface {
	Create(ctx context.Context, container, key string) (model.Image, error)
	GetByID(ctx context.Context, id int64) (model.Image, error)
	GetByKey(ctx context.Context, key string) (model.Image, error)
	Delete(ctx context.Context, id int64) error
}

// orphanReporter receives objects left without metadata.
type orphanReporter interface {
	ReportOrphan(ctx context.Context, o model.Orphan) error
}

// recorder counts operation outcomes.
type recorder interface {
	Observe(domain, operation, outcome string)
	Orphan(domain, reason string)
}

// Config is the immutable configuration of one image domain.
type Config struct {
	Name      string
	Container string
	Policy    processor.Policy
}

// Option customizes a Service.
type Option func(*Service)

// WithRecords switches the service to the metadata variant: uploads are
// tracked by a record and referenced by its numeric id.
func WithRecords(r recordStore) Option {
	return func(s *Service) { s.records = r }
}

// WithOrphanReporter sets where orphaned objects are reported.
func WithOrphanReporter(r orphanReporter) Option {
	return func(s *Service) { s.reporter = r }
}

// WithMetrics sets the outcome recorder.
func WithMetrics(m recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Service mediates between the object store and the metadata store for a
// single image domain.
type Service struct {
	cfg      Config
	store    objectStore
	signer   urlSigner
	records  recordStore
	reporter orphanReporter
	metrics  recorder
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates a Service for cfg. store is the internal client and
// signer the external one.
func NewService(cfg Config, store objectStore, signer urlSigner, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  store,
		signer: signer,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the domain name.
func (s *Service) Name() string { return s.cfg.Name }

// Container returns the container the domain stores its objects in.
func (s *Service) Container() string { return s.cfg.Container }

// Tracked reports whether the service uses metadata records.
func (s *Service) Tracked() bool { return s.records != nil }

// ContentType returns the MIME type of every object this domain stores.
func (s *Service) ContentType() string { return s.cfg.Policy.ContentType() }

// Upload transforms img, stores it and returns its reference: the object
// key, or the record id in the metadata variant.
func (s *Service) Upload(ctx context.Context, img image.Image) (string, error) {
	rec, err := s.UploadRecord(ctx, img)
	if err != nil {
		return "", err
	}

	if s.records == nil {
		return rec.Key, nil
	}
	return strconv.FormatInt(rec.ID, 10), nil
}

// UploadRecord is Upload returning the full record. In the key variant the
// record has a zero ID.
//
// Once the object is being written the call is not cancellable, so a
// cancelled ctx never leaves a half-finished upload behind.
func (s *Service) UploadRecord(ctx context.Context, img image.Image) (rec model.Image, err error) {
	defer func() { s.observe("upload", err) }()

	key := uuid.NewString()

	data, err := s.cfg.Policy.Transform(img)
	if err != nil {
		return model.Image{}, fmt.Errorf("upload: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	rec = model.Image{Container: s.cfg.Container, Key: key, CreatedAt: s.now()}

	steps := []step{{
		name: "put object",
		do: func(ctx context.Context) error {
			if err := s.store.Put(ctx, rec.Container, key, data, s.ContentType()); err != nil {
				return fmt.Errorf("%w: %w", ErrStore, err)
			}
			return nil
		},
		undo: func(ctx context.Context) error {
			return s.store.Delete(ctx, rec.Container, key)
		},
	}}

	if s.records != nil {
		steps = append(steps, step{
			name: "insert record",
			do: func(ctx context.Context) error {
				created, err := s.records.Create(ctx, rec.Container, key)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrMetadata, err)
				}
				rec = created
				return nil
			},
		})
	}

	if err := runSaga(ctx, steps...); err != nil {
		var ce *compensationError
		if errors.As(err, &ce) {
			zlog.Logger.Error().
				Str("domain", s.cfg.Name).
				Str("container", rec.Container).
				Str("key", key).
				Err(ce.undoErr).
				Msg("compensating delete failed, object is orphaned")
			s.reportOrphan(ctx, key, model.OrphanCompensationFailed)

			return model.Image{}, &OrphanError{Container: rec.Container, Key: key, Cause: ce.err, UndoErr: ce.undoErr}
		}

		if errors.Is(err, ErrMetadata) {
			zlog.Logger.Warn().
				Str("domain", s.cfg.Name).
				Str("key", key).
				Err(err).
				Msg("record insert failed, stored object removed")
		}

		return model.Image{}, fmt.Errorf("upload: %w", err)
	}

	return rec, nil
}

// Delete removes the image referenced by ref. The record goes first, then
// the object: a failed object delete leaves an orphaned blob, never a record
// pointing at nothing.
//
// In the metadata variant deleting an id that has no record succeeds, so
// repeated and concurrent deletes are idempotent. The key variant cannot tell
// an already deleted key from a foreign one and reports ErrNotFound.
func (s *Service) Delete(ctx context.Context, ref string) (err error) {
	defer func() { s.observe("delete", err) }()

	rec, err := s.resolve(ctx, ref)
	if err != nil {
		if s.records != nil && errors.Is(err, ErrNotFound) && isID(ref) {
			return nil
		}
		return s.lookupError("delete", ref, err)
	}

	return s.delete(ctx, rec)
}

// DeleteByKey removes the image stored under key in this domain. In the
// metadata variant a well-formed key with no record anywhere succeeds.
func (s *Service) DeleteByKey(ctx context.Context, key string) (err error) {
	defer func() { s.observe("delete", err) }()

	rec, err := s.resolveKey(ctx, key)
	if err != nil {
		if s.records != nil && errors.Is(err, ErrNotFound) && isKey(key) {
			return nil
		}
		return s.lookupError("delete", key, err)
	}

	return s.delete(ctx, rec)
}

func (s *Service) delete(ctx context.Context, rec model.Image) error {
	if s.records != nil {
		// A concurrent delete may already have removed the row.
		if err := s.records.Delete(ctx, rec.ID); err != nil && !errors.Is(err, imagerepo.ErrImageNotFound) {
			return fmt.Errorf("delete %s: %w: %w", rec.Key, ErrMetadata, err)
		}
	}

	if err := s.store.Delete(ctx, rec.Container, rec.Key); err != nil {
		if s.records != nil {
			s.reportOrphan(ctx, rec.Key, model.OrphanDeleteFailed)
		}
		return fmt.Errorf("delete %s: %w: %w", rec.Key, ErrStore, err)
	}

	return nil
}

// Sign returns a presigned URL for the image referenced by ref, minted with
// the external client.
func (s *Service) Sign(ctx context.Context, ref string) (u model.PresignedURL, err error) {
	defer func() { s.observe("sign", err) }()

	rec, err := s.resolve(ctx, ref)
	if err != nil {
		return model.PresignedURL{}, s.lookupError("sign", ref, err)
	}

	return s.sign(ctx, rec)
}

// SignByKey returns a presigned URL for the image stored under key.
func (s *Service) SignByKey(ctx context.Context, key string) (u model.PresignedURL, err error) {
	defer func() { s.observe("sign", err) }()

	rec, err := s.resolveKey(ctx, key)
	if err != nil {
		return model.PresignedURL{}, s.lookupError("sign", key, err)
	}

	return s.sign(ctx, rec)
}

// Open streams the image referenced by ref through the internal client, for
// callers serving the bytes themselves. Objects carry ContentType().
func (s *Service) Open(ctx context.Context, ref string) (rc io.ReadCloser, err error) {
	defer func() { s.observe("open", err) }()

	rec, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, s.lookupError("open", ref, err)
	}

	rc, err = s.store.Get(ctx, rec.Container, rec.Key)
	if err != nil {
		// A record can outlive its object when an earlier delete failed.
		if errors.Is(err, file.ErrObjectNotFound) {
			return nil, fmt.Errorf("open %s: %w", rec.Key, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w: %w", rec.Key, ErrStore, err)
	}

	return rc, nil
}

func (s *Service) sign(ctx context.Context, rec model.Image) (model.PresignedURL, error) {
	issued := s.now()

	u, err := s.signer.Sign(ctx, rec.Container, rec.Key, s.ttl)
	if err != nil {
		return model.PresignedURL{}, fmt.Errorf("sign %s: %w: %w", rec.Key, ErrTransport, err)
	}

	return model.PresignedURL{URI: u.String(), ValidUntil: issued.Add(s.ttl)}, nil
}

// resolve maps a reference to its record. Results other than ErrNotFound
// and ErrMismatch are lookup failures.
func (s *Service) resolve(ctx context.Context, ref string) (model.Image, error) {
	if s.records == nil {
		return s.resolveKey(ctx, ref)
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return model.Image{}, ErrNotFound
	}

	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, imagerepo.ErrImageNotFound) {
			return model.Image{}, ErrNotFound
		}
		return model.Image{}, err
	}

	if rec.Container != s.cfg.Container {
		return model.Image{}, ErrMismatch
	}

	return rec, nil
}

// resolveKey maps an object key to its record. Records are looked up in
// every container so a foreign key is ErrMismatch. Without records the
// object itself must exist in this domain's container.
func (s *Service) resolveKey(ctx context.Context, key string) (model.Image, error) {
	if _, err := uuid.Parse(key); err != nil {
		return model.Image{}, ErrNotFound
	}

	if s.records != nil {
		rec, err := s.records.GetByKey(ctx, key)
		if err != nil {
			if errors.Is(err, imagerepo.ErrImageNotFound) {
				return model.Image{}, ErrNotFound
			}
			return model.Image{}, err
		}
		if rec.Container != s.cfg.Container {
			return model.Image{}, ErrMismatch
		}
		return rec, nil
	}

	exists, err := s.store.Exists(ctx, s.cfg.Container, key)
	if err != nil {
		return model.Image{}, err
	}
	if !exists {
		return model.Image{}, ErrNotFound
	}

	return model.Image{Container: s.cfg.Container, Key: key}, nil
}

func isID(ref string) bool {
	_, err := strconv.ParseInt(ref, 10, 64)
	return err == nil
}

func isKey(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}

// lookupError wraps a resolve failure with the error kind of op.
func (s *Service) lookupError(op, ref string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMismatch) {
		return fmt.Errorf("%s %s: %w", op, ref, err)
	}

	kind := ErrTransport
	if op == "delete" || op == "open" {
		kind = ErrStore
		if s.records != nil {
			kind = ErrMetadata
		}
	}

	return fmt.Errorf("%s %s: %w: %w", op, ref, kind, err)
}

func (s *Service) reportOrphan(ctx context.Context, key, reason string) {
	if s.metrics != nil {
		s.metrics.Orphan(s.cfg.Name, reason)
	}
	if s.reporter == nil {
		return
	}

	o := model.Orphan{
		Domain:     s.cfg.Name,
		Container:  s.cfg.Container,
		Key:        key,
		Reason:     reason,
		DetectedAt: s.now(),
	}
	if err := s.reporter.ReportOrphan(ctx, o); err != nil {
		zlog.Logger.Err(err).
			Str("container", o.Container).
			Str("key", o.Key).
			Msg("failed to report orphaned object")
	}
}

func (s *Service) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.Observe(s.cfg.Name, op, Outcome(err))
	}
}

// Outcome classifies an error returned by the service for metrics and
// logging.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCompensationFailed):
		return "compensation_failed"
	case errors.Is(err, ErrProcess):
		return "process_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	case errors.Is(err, ErrMetadata):
		return "metadata_error"
	case errors.Is(err, ErrStore):
		return "store_error"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	default:
		return "error"
	}
}
