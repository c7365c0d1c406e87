// Package redisstore keeps generated artifacts in Redis, letting key expiry
// enforce the retention window.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/adminjobs/internal/core"
)

// DefaultPrefix namespaces artifact keys.
const DefaultPrefix = "adminjobs:artifact:"

// Options configures the client built by Connect.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Connect builds a client and verifies it with PING.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// ArtifactStore stores each artifact as a hash whose TTL matches the
// artifact's expiry.
type ArtifactStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ core.ArtifactStore = (*ArtifactStore)(nil)

// NewArtifactStore returns a store using client. An empty prefix selects
// DefaultPrefix.
func NewArtifactStore(client redis.UniversalClient, prefix string) *ArtifactStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ArtifactStore{client: client, prefix: prefix, now: time.Now}
}

const (
	fieldOrganization = "organization_id"
	fieldFileName     = "file_name"
	fieldContentType  = "content_type"
	fieldBytes        = "bytes"
	fieldCreatedAt    = "created_at"
	fieldExpiresAt    = "expires_at"
)

func (s *ArtifactStore) key(k string) string {
	return s.prefix + k
}

func (s *ArtifactStore) Put(ctx context.Context, a core.Artifact) error {
	var ttl time.Duration
	if !a.ExpiresAt.IsZero() {
		ttl = a.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
	}

	key := s.key(a.Key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			fieldOrganization: a.OrganizationID,
			fieldFileName:     a.FileName,
			fieldContentType:  a.ContentType,
			fieldBytes:        a.Bytes,
			fieldCreatedAt:    a.CreatedAt.UTC().UnixMilli(),
			fieldExpiresAt:    unixMilli(a.ExpiresAt),
		})
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store artifact %s: %w", a.Key, err)
	}
	return nil
}

func (s *ArtifactStore) Get(ctx context.Context, key string) (core.Artifact, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(values) == 0) {
		return core.Artifact{}, core.ErrArtifactNotFound
	}
	if err != nil {
		return core.Artifact{}, fmt.Errorf("load artifact %s: %w", key, err)
	}

	a := core.Artifact{
		Key:            key,
		OrganizationID: values[fieldOrganization],
		FileName:       values[fieldFileName],
		ContentType:    values[fieldContentType],
		Bytes:          []byte(values[fieldBytes]),
		CreatedAt:      fromMilli(values[fieldCreatedAt]),
		ExpiresAt:      fromMilli(values[fieldExpiresAt]),
	}
	if a.Expired(s.now()) {
		return core.Artifact{}, core.ErrArtifactNotFound
	}
	return a, nil
}

func (s *ArtifactStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete artifact %s: %w", key, err)
	}
	return nil
}

// PurgeExpired is a no-op: Redis drops expired keys itself.
func (s *ArtifactStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMilli(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
