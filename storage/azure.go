package storage

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"lakeview/config"
)

var _ Storage = (*AzureStorage)(nil)

// AzureStorage reads from one Azure Blob Storage container.
type AzureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

func NewAzureStorage(client *azblob.Client, containerName, prefix string) *AzureStorage {
	return &AzureStorage{client: client, container: containerName, prefix: prefix}
}

// NewAzureClient builds a shared-key client for the configured account.
func NewAzureClient(cfg config.StoreConfig) (*azblob.Client, error) {
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("creating shared key credential: %w", err)
	}

	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure blob client: %w", err)
	}
	return client, nil
}

func (s *AzureStorage) containerClient() *container.Client {
	return s.client.ServiceClient().NewContainerClient(s.container)
}

func (s *AzureStorage) List(ctx context.Context, dir string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		listPrefix := dirPrefix(s.prefix, dir)
		pager := s.containerClient().NewListBlobsHierarchyPager(Separator, &container.ListBlobsHierarchyOptions{
			Prefix: &listPrefix,
		})

		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(ObjectInfo{}, fmt.Errorf("listing blobs under %s: %w", dir, err))
				return
			}
			if page.Segment == nil {
				continue
			}

			for _, p := range page.Segment.BlobPrefixes {
				if p.Name == nil {
					continue
				}
				if !yield(ObjectInfo{Path: pathFor(s.prefix, *p.Name), IsDir: true}, nil) {
					return
				}
			}
			for _, b := range page.Segment.BlobItems {
				if b.Name == nil || *b.Name == listPrefix {
					continue
				}
				info := ObjectInfo{Path: pathFor(s.prefix, *b.Name)}
				if b.Properties != nil {
					if b.Properties.ContentLength != nil {
						info.Size = *b.Properties.ContentLength
					}
					if b.Properties.ContentType != nil {
						info.ContentType = *b.Properties.ContentType
					}
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

func (s *AzureStorage) Exists(ctx context.Context, filepath string) (bool, error) {
	_, err := s.containerClient().NewBlobClient(keyFor(s.prefix, filepath)).GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading properties of %s: %w", filepath, err)
	}
	return true, nil
}

func (s *AzureStorage) ReadRange(ctx context.Context, filepath string, offset, length int64) (io.ReadCloser, error) {
	return s.download(ctx, filepath, &azblob.DownloadStreamOptions{
		Range: azblob.HTTPRange{Offset: offset, Count: length},
	})
}

func (s *AzureStorage) Read(ctx context.Context, filepath string) (io.ReadCloser, error) {
	return s.download(ctx, filepath, nil)
}

func (s *AzureStorage) download(ctx context.Context, filepath string, opts *azblob.DownloadStreamOptions) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, keyFor(s.prefix, filepath), opts)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("downloading %s: %w", filepath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", filepath, err)
	}
	return resp.Body, nil
}
