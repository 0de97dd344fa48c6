package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"lakeview/config"
)

var _ Storage = (*S3Storage)(nil)

type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Storage(client *s3.Client, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// NewS3Client builds a client from the store configuration. Requests are
// unsigned when no static credentials are configured.
func NewS3Client(cfg config.StoreConfig) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
		Credentials:  aws.AnonymousCredentials{},
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (s *S3Storage) List(ctx context.Context, dir string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		listPrefix := dirPrefix(s.prefix, dir)
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(s.bucket),
			Prefix:    aws.String(listPrefix),
			Delimiter: aws.String(Separator),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(ObjectInfo{}, fmt.Errorf("listing objects under %s: %w", dir, err))
				return
			}

			for _, cp := range page.CommonPrefixes {
				info := ObjectInfo{Path: pathFor(s.prefix, aws.ToString(cp.Prefix)), IsDir: true}
				if !yield(info, nil) {
					return
				}
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if key == listPrefix {
					// zero-byte folder marker
					continue
				}
				info := ObjectInfo{Path: pathFor(s.prefix, key), Size: aws.ToInt64(obj.Size)}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

func (s *S3Storage) Exists(ctx context.Context, filepath string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(keyFor(s.prefix, filepath)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("heading object %s: %w", filepath, err)
	}
	return true, nil
}

func (s *S3Storage) ReadRange(ctx context.Context, filepath string, offset, length int64) (io.ReadCloser, error) {
	return s.get(ctx, filepath, aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)))
}

func (s *S3Storage) Read(ctx context.Context, filepath string) (io.ReadCloser, error) {
	return s.get(ctx, filepath, nil)
}

func (s *S3Storage) get(ctx context.Context, filepath string, byteRange *string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(keyFor(s.prefix, filepath)),
		Range:  byteRange,
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("getting object %s: %w", filepath, ErrNotFound)
		}
		return nil, fmt.Errorf("getting object %s: %w", filepath, err)
	}

	return output.Body, nil
}

func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
