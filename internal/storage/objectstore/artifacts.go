// Package objectstore keeps generated artifacts in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JonMunkholm/adminjobs/internal/core"
)

// Options configures the bucket connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

const (
	metaOrganization = "Organization-Id"
	metaFileName     = "File-Name"
	metaCreatedAt    = "Created-At"
	metaExpiresAt    = "Expires-At"
)

// objectClient is the subset of the bucket API the store needs.
type objectClient interface {
	put(ctx context.Context, key string, data []byte, opts minio.PutObjectOptions) error
	get(ctx context.Context, key string) ([]byte, minio.ObjectInfo, error)
	stat(ctx context.Context, key string) (minio.ObjectInfo, error)
	remove(ctx context.Context, key string) error
	list(ctx context.Context, prefix string) <-chan minio.ObjectInfo
}

// ArtifactStore writes each artifact as one object. Ownership and expiry
// travel as user metadata; PurgeExpired removes objects past their expiry.
type ArtifactStore struct {
	client objectClient
	prefix string
	now    func() time.Time
}

var _ core.ArtifactStore = (*ArtifactStore)(nil)

// New connects to the bucket, creating it if missing.
func New(ctx context.Context, opts Options) (*ArtifactStore, error) {
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	exists, err := mc.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}

	return newStore(&minioClient{client: mc, bucket: opts.Bucket}, opts.Prefix), nil
}

func newStore(client objectClient, prefix string) *ArtifactStore {
	if prefix == "" {
		prefix = "artifacts/"
	}
	return &ArtifactStore{client: client, prefix: prefix, now: time.Now}
}

func (s *ArtifactStore) object(key string) string {
	return s.prefix + key
}

func (s *ArtifactStore) Put(ctx context.Context, a core.Artifact) error {
	meta := map[string]string{
		metaOrganization: a.OrganizationID,
		metaFileName:     a.FileName,
		metaCreatedAt:    formatTime(a.CreatedAt),
		metaExpiresAt:    formatTime(a.ExpiresAt),
	}
	opts := minio.PutObjectOptions{
		ContentType:  a.ContentType,
		UserMetadata: meta,
	}
	if !a.ExpiresAt.IsZero() {
		opts.Expires = a.ExpiresAt.UTC()
	}

	if err := s.client.put(ctx, s.object(a.Key), a.Bytes, opts); err != nil {
		return fmt.Errorf("upload artifact %s: %w", a.Key, err)
	}
	return nil
}

func (s *ArtifactStore) Get(ctx context.Context, key string) (core.Artifact, error) {
	data, info, err := s.client.get(ctx, s.object(key))
	if isNotFound(err) {
		return core.Artifact{}, core.ErrArtifactNotFound
	}
	if err != nil {
		return core.Artifact{}, fmt.Errorf("download artifact %s: %w", key, err)
	}

	a := fromInfo(key, info)
	a.Bytes = data
	if a.Expired(s.now()) {
		return core.Artifact{}, core.ErrArtifactNotFound
	}
	return a, nil
}

func (s *ArtifactStore) Delete(ctx context.Context, key string) error {
	if err := s.client.remove(ctx, s.object(key)); err != nil && !isNotFound(err) {
		return fmt.Errorf("remove artifact %s: %w", key, err)
	}
	return nil
}

// PurgeExpired walks the prefix and removes objects past their expiry.
func (s *ArtifactStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	purged := 0
	for info := range s.client.list(listCtx, s.prefix) {
		if info.Err != nil {
			return purged, fmt.Errorf("list artifacts: %w", info.Err)
		}

		stat, err := s.client.stat(ctx, info.Key)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("stat artifact %s: %w", info.Key, err)
		}
		if !fromInfo(info.Key, stat).Expired(now) {
			continue
		}
		if err := s.client.remove(ctx, info.Key); err != nil && !isNotFound(err) {
			return purged, fmt.Errorf("remove artifact %s: %w", info.Key, err)
		}
		purged++
	}
	return purged, nil
}

func fromInfo(key string, info minio.ObjectInfo) core.Artifact {
	meta := info.UserMetadata
	return core.Artifact{
		Key:            key,
		OrganizationID: meta[metaOrganization],
		FileName:       meta[metaFileName],
		ContentType:    info.ContentType,
		CreatedAt:      parseTime(meta[metaCreatedAt]),
		ExpiresAt:      parseTime(meta[metaExpiresAt]),
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// minioClient adapts *minio.Client to objectClient for one bucket.
type minioClient struct {
	client *minio.Client
	bucket string
}

func (m *minioClient) put(ctx context.Context, key string, data []byte, opts minio.PutObjectOptions) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	return err
}

func (m *minioClient) get(ctx context.Context, key string) ([]byte, minio.ObjectInfo, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	return data, info, nil
}

func (m *minioClient) stat(ctx context.Context, key string) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
}

func (m *minioClient) remove(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioClient) list(ctx context.Context, prefix string) <-chan minio.ObjectInfo {
	return m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
}
