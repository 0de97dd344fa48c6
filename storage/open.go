package storage

import (
	"context"
	"fmt"

	"lakeview/config"
)

// Open builds the backend selected by cfg.Kind.
func Open(ctx context.Context, cfg config.StoreConfig) (Storage, error) {
	switch cfg.Kind {
	case config.StoreS3:
		return NewS3Storage(NewS3Client(cfg), cfg.Bucket, cfg.Prefix), nil
	case config.StoreGCS:
		client, err := NewGCSClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewGCSStorage(client, cfg.Bucket, cfg.Prefix), nil
	case config.StoreAzure:
		client, err := NewAzureClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewAzureStorage(client, cfg.Bucket, cfg.Prefix), nil
	case config.StoreMinIO:
		client, err := NewMinIOClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewMinIOStorage(client, cfg.Bucket, cfg.Prefix), nil
	case config.StoreLocal:
		return NewLocalStorage(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
