package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"lead_scoring_backend/internal/adapters/storage"
	"lead_scoring_backend/internal/scoring/domain"
)

const artifactContentType = "application/json"

// ObjectStore keeps artifacts as JSON objects named <kind>/<fingerprint>.json.
// It never expires anything on its own.
type ObjectStore struct {
	storage storage.ObjectStorage
	bucket  string
}

var _ Store = (*ObjectStore)(nil)

// NewObjectStore creates a store on bucket. The bucket must already exist.
func NewObjectStore(s storage.ObjectStorage, bucket string) *ObjectStore {
	return &ObjectStore{storage: s, bucket: bucket}
}

func objectKey(key Key) string {
	return path.Join(string(key.Kind), key.Fingerprint+".json")
}

func (s *ObjectStore) Get(ctx context.Context, key Key) (*Artifact, error) {
	data, err := s.storage.GetObject(ctx, s.bucket, objectKey(key))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (s *ObjectStore) Put(ctx context.Context, a *Artifact) error {
	data, err := Encode(a)
	if err != nil {
		return err
	}
	return s.storage.PutObject(ctx, s.bucket, objectKey(a.Key()), artifactContentType, data)
}

func (s *ObjectStore) Invalidate(ctx context.Context, kind domain.ModelKind) (int, error) {
	keys, err := s.storage.ListObjects(ctx, s.bucket, string(kind)+"/")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if err := s.storage.RemoveObject(ctx, s.bucket, k); err != nil {
			return removed, fmt.Errorf("invalidate %s: %w", kind, err)
		}
		removed++
	}
	return removed, nil
}

func (s *ObjectStore) List(ctx context.Context) ([]*Artifact, error) {
	var out []*Artifact
	for _, kind := range domain.SupportedModelKinds {
		keys, err := s.storage.ListObjects(ctx, s.bucket, string(kind)+"/")
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if !strings.HasSuffix(k, ".json") {
				continue
			}
			data, err := s.storage.GetObject(ctx, s.bucket, k)
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			a, err := Decode(data)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
	}
	sortNewestFirst(out)
	return out, nil
}
