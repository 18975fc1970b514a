// Package assets stores variant-aware images (group logos) behind a logical key.
package assets

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/pkg/queue"
	"github.com/srcf/lightbluetent/pkg/storage"
)

// variantRe matches density variants such as "@2x" or "@1.5x".
var variantRe = regexp.MustCompile(`^@([0-9]+(\.[0-9]+)?)x$`)

// ObjectStore holds the bytes.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	Delete(ctx context.Context, key string) error
	PublicObjectURL(key string) string
}

// Records indexes stored variants by logical key.
type Records interface {
	List(ctx context.Context, key string) ([]models.Asset, error)
	Replace(ctx context.Context, key string, variants []models.Asset) error
	DeleteKey(ctx context.Context, key string) error
}

// Locker serialises writers of one key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

// Purger accepts objects whose deletion failed.
type Purger interface {
	EnqueueAssetPurge(ctx context.Context, payload queue.AssetPurgePayload) error
}

// Upload is one variant of a new image.
type Upload struct {
	Variant     string // "" for the main image, or a density such as "@2x"
	Filename    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// Store replaces and removes images atomically per key.
type Store struct {
	objects ObjectStore
	records Records
	locker  Locker
	purger  Purger
	logger  *zap.Logger
	timeout time.Duration
}

// NewStore creates a Store.
func NewStore(objects ObjectStore, records Records, locker Locker, purger Purger, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{objects: objects, records: records, locker: locker, purger: purger, logger: logger, timeout: 10 * time.Second}
}

// ValidVariant reports whether v is "" or a density marker.
func ValidVariant(v string) bool {
	return v == "" || variantRe.MatchString(v)
}

// Replace swaps every variant stored under key for uploads. While the key's lock is
// held, the new objects are written, the index is switched, and the old objects are
// deleted. Old objects that cannot be deleted are queued for the purge worker.
func (s *Store) Replace(ctx context.Context, key string, uploads []Upload) ([]models.Asset, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("replace %s: no files", key)
	}
	for _, u := range uploads {
		if !ValidVariant(u.Variant) {
			return nil, fmt.Errorf("replace %s: invalid variant %q", key, u.Variant)
		}
		if !storage.ValidateLogoFileType(u.ContentType, u.Filename) {
			return nil, fmt.Errorf("replace %s: unsupported file type %q", key, u.Filename)
		}
	}

	release, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	old, err := s.records.List(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list assets %s: %w", key, err)
	}

	version := uuid.NewString()[:8]
	var created []models.Asset
	for _, u := range uploads {
		ext := extension(u)
		objKey := storage.LogoObjectKey(key+"-"+version, u.Variant, ext)
		contentType := u.ContentType
		if contentType == "" {
			contentType = storage.ContentTypeForFilename(u.Filename)
		}
		if _, err := s.objects.Upload(ctx, objKey, contentType, u.Body, u.Size); err != nil {
			s.discard(ctx, key, created)
			return nil, fmt.Errorf("store variant %q of %s: %w", u.Variant, key, err)
		}
		created = append(created, models.Asset{Key: key, Variant: u.Variant, Path: objKey})
	}

	if err := s.records.Replace(ctx, key, created); err != nil {
		s.discard(ctx, key, created)
		return nil, fmt.Errorf("index assets %s: %w", key, err)
	}
	s.discard(ctx, key, old)
	s.logger.Info("assets replaced", zap.String("key", key), zap.Int("variants", len(created)), zap.Int("removed", len(old)))
	return created, nil
}

// Remove deletes every variant stored under key.
func (s *Store) Remove(ctx context.Context, key string) error {
	release, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	old, err := s.records.List(ctx, key)
	if err != nil {
		return fmt.Errorf("list assets %s: %w", key, err)
	}
	if err := s.records.DeleteKey(ctx, key); err != nil {
		return fmt.Errorf("delete assets %s: %w", key, err)
	}
	s.discard(ctx, key, old)
	return nil
}

func (s *Store) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "asset:"+key)
	if err != nil {
		return nil, fmt.Errorf("lock asset %s: %w", key, err)
	}
	return func() {
		// The request context may already be cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := unlock(rctx); err != nil {
			s.logger.Warn("release asset lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// discard deletes objects, queueing the ones that fail.
func (s *Store) discard(ctx context.Context, key string, assets []models.Asset) {
	var failed []string
	for _, a := range assets {
		if err := s.objects.Delete(ctx, a.Path); err != nil {
			s.logger.Warn("delete asset object", zap.String("path", a.Path), zap.Error(err))
			failed = append(failed, a.Path)
		}
	}
	if len(failed) == 0 || s.purger == nil {
		return
	}
	if err := s.purger.EnqueueAssetPurge(ctx, queue.AssetPurgePayload{Key: key, Objects: failed}); err != nil {
		s.logger.Error("enqueue asset purge", zap.String("key", key), zap.Strings("objects", failed), zap.Error(err))
	}
}

func extension(u Upload) string {
	if i := strings.LastIndex(u.Filename, "."); i >= 0 {
		ext := strings.ToLower(u.Filename[i:])
		if ext == ".jpeg" {
			ext = ".jpg"
		}
		return ext
	}
	if ext, ok := storage.AllowedLogoTypes[strings.ToLower(u.ContentType)]; ok {
		return ext
	}
	return ""
}

// Image is a stored image ready to render: the main URL plus density variants.
type Image struct {
	Main     string            `json:"main"`
	Variants map[string]string `json:"variants,omitempty"` // density ("2") -> URL
}

// Srcset renders Variants as an img srcset value, lowest density first.
func (i Image) Srcset() string {
	type entry struct {
		density float64
		text    string
	}
	entries := make([]entry, 0, len(i.Variants))
	for d, u := range i.Variants {
		f, _ := strconv.ParseFloat(d, 64)
		entries = append(entries, entry{f, u + " " + d + "x"})
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].density < entries[b].density })
	parts := make([]string, len(entries))
	for n, e := range entries {
		parts[n] = e.text
	}
	return strings.Join(parts, ", ")
}

// Responsive builds an Image from stored variants. An unannotated variant is the main
// image; otherwise the highest density is. Variants with unrecognised markers are ignored.
func Responsive(assets []models.Asset, urlFor func(path string) string) Image {
	img := Image{Variants: map[string]string{}}
	best := -1.0
	for _, a := range assets {
		u := urlFor(a.Path)
		if a.Variant == "" {
			img.Main = u
			best = inf
			continue
		}
		m := variantRe.FindStringSubmatch(a.Variant)
		if m == nil {
			continue
		}
		d, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		img.Variants[m[1]] = u
		if d > best {
			best = d
			img.Main = u
		}
	}
	return img
}

const inf = 1 << 30

// Lookup resolves key to a renderable Image. ok is false when nothing is stored.
func (s *Store) Lookup(ctx context.Context, key string) (Image, bool, error) {
	assets, err := s.records.List(ctx, key)
	if err != nil {
		return Image{}, false, fmt.Errorf("list assets %s: %w", key, err)
	}
	if len(assets) == 0 {
		return Image{}, false, nil
	}
	return Responsive(assets, s.objects.PublicObjectURL), true, nil
}
