package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lead_scoring_backend/internal/scoring/domain"
)

const (
	redisArtifactPrefix = "scoring:artifact:"
	redisIndexPrefix    = "scoring:artifacts:"
)

// RedisStore shares artifacts between processes through Redis.
// Each kind keeps an index set so Invalidate can find its keys.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on client. A ttl of zero keeps artifacts until invalidated.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(key Key) string {
	return redisArtifactPrefix + string(key.Kind) + ":" + key.Fingerprint
}

func redisIndex(kind domain.ModelKind) string {
	return redisIndexPrefix + string(kind)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Artifact, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return Decode(data)
}

func (s *RedisStore) Put(ctx context.Context, a *Artifact) error {
	data, err := Encode(a)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKey(a.Key()), data, s.ttl)
	pipe.SAdd(ctx, redisIndex(a.Kind), redisKey(a.Key()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", a.Key(), err)
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, kind domain.ModelKind) (int, error) {
	keys, err := s.client.SMembers(ctx, redisIndex(kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis index %s: %w", kind, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis invalidate %s: %w", kind, err)
	}
	if err := s.client.Del(ctx, redisIndex(kind)).Err(); err != nil {
		return int(removed), fmt.Errorf("redis drop index %s: %w", kind, err)
	}
	return int(removed), nil
}

// List returns live artifacts of every supported kind, newest first.
// Index entries whose artifact expired are pruned on the way.
func (s *RedisStore) List(ctx context.Context) ([]*Artifact, error) {
	var out []*Artifact
	for _, kind := range domain.SupportedModelKinds {
		keys, err := s.client.SMembers(ctx, redisIndex(kind)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis index %s: %w", kind, err)
		}
		if len(keys) == 0 {
			continue
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list %s: %w", kind, err)
		}
		var stale []any
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, keys[i])
				continue
			}
			a, err := Decode([]byte(raw))
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		if len(stale) > 0 {
			s.client.SRem(ctx, redisIndex(kind), stale...)
		}
	}
	sortNewestFirst(out)
	return out, nil
}
