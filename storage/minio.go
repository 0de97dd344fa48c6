package storage

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lakeview/config"
)

var _ Storage = (*MinIOStorage)(nil)

// MinIOStorage reads from a bucket on a MinIO (or other S3-compatible)
// server through the minio client.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinIOStorage(client *minio.Client, bucket, prefix string) *MinIOStorage {
	return &MinIOStorage{client: client, bucket: bucket, prefix: prefix}
}

// NewMinIOClient connects to cfg.Endpoint, e.g. "localhost:9000".
func NewMinIOClient(cfg config.StoreConfig) (*minio.Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return mc, nil
}

func (s *MinIOStorage) List(ctx context.Context, dir string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		// the listing goroutine only stops once its context is done
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		listPrefix := dirPrefix(s.prefix, dir)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    listPrefix,
			Recursive: false,
		}) {
			if obj.Err != nil {
				yield(ObjectInfo{}, fmt.Errorf("listing objects under %s: %w", dir, obj.Err))
				return
			}
			if obj.Key == listPrefix {
				continue
			}

			info := ObjectInfo{
				Path:        pathFor(s.prefix, obj.Key),
				Size:        obj.Size,
				ContentType: obj.ContentType,
			}
			if strings.HasSuffix(obj.Key, Separator) {
				info = ObjectInfo{Path: pathFor(s.prefix, obj.Key), IsDir: true}
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (s *MinIOStorage) Exists(ctx context.Context, filepath string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, keyFor(s.prefix, filepath), minio.StatObjectOptions{})
	if isMinIONotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object %s: %w", filepath, err)
	}
	return true, nil
}

func (s *MinIOStorage) ReadRange(ctx context.Context, filepath string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, fmt.Errorf("ranged read of %s: %w", filepath, err)
	}
	return s.get(ctx, filepath, opts)
}

func (s *MinIOStorage) Read(ctx context.Context, filepath string) (io.ReadCloser, error) {
	return s.get(ctx, filepath, minio.GetObjectOptions{})
}

// get issues the request eagerly; minio defers it to the first Read or Stat
// otherwise, which would hide a missing object until the stream is consumed.
func (s *MinIOStorage) get(ctx context.Context, filepath string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, keyFor(s.prefix, filepath), opts)
	if err == nil {
		_, err = obj.Stat()
		if err != nil {
			obj.Close()
		}
	}
	if isMinIONotFound(err) {
		return nil, fmt.Errorf("getting object %s: %w", filepath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", filepath, err)
	}
	return obj, nil
}

func isMinIONotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
