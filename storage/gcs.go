package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"lakeview/config"
)

var _ Storage = (*GCSStorage)(nil)

// GCSStorage reads from a Google Cloud Storage bucket.
type GCSStorage struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSStorage(client *gcs.Client, bucket, prefix string) *GCSStorage {
	return &GCSStorage{client: client, bucket: bucket, prefix: prefix}
}

// NewGCSClient builds a client, using a service-account file when one is
// configured and application default credentials otherwise.
func NewGCSClient(ctx context.Context, cfg config.StoreConfig) (*gcs.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return client, nil
}

func (s *GCSStorage) List(ctx context.Context, dir string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		listPrefix := dirPrefix(s.prefix, dir)
		it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{
			Prefix:    listPrefix,
			Delimiter: Separator,
		})

		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(ObjectInfo{}, fmt.Errorf("listing objects under %s: %w", dir, err))
				return
			}

			var info ObjectInfo
			switch {
			case attrs.Prefix != "":
				info = ObjectInfo{Path: pathFor(s.prefix, attrs.Prefix), IsDir: true}
			case attrs.Name == listPrefix:
				continue
			default:
				info = ObjectInfo{
					Path:        pathFor(s.prefix, attrs.Name),
					Size:        attrs.Size,
					ContentType: attrs.ContentType,
				}
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (s *GCSStorage) Exists(ctx context.Context, filepath string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(keyFor(s.prefix, filepath)).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading attributes of %s: %w", filepath, err)
	}
	return true, nil
}

func (s *GCSStorage) ReadRange(ctx context.Context, filepath string, offset, length int64) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(keyFor(s.prefix, filepath)).NewRangeReader(ctx, offset, length)
	return gcsReader(filepath, r, err)
}

func (s *GCSStorage) Read(ctx context.Context, filepath string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(keyFor(s.prefix, filepath)).NewReader(ctx)
	return gcsReader(filepath, r, err)
}

func gcsReader(filepath string, r *gcs.Reader, err error) (io.ReadCloser, error) {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("opening object %s: %w", filepath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", filepath, err)
	}
	return r, nil
}
