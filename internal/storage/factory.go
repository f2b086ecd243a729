package storage

import (
	"fmt"

	"github.com/lgulliver/filestore/pkg/config"
)

// StorageFactory creates storage instances based on configuration
type StorageFactory struct {
	config *config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(config *config.StorageConfig) *StorageFactory {
	return &StorageFactory{config: config}
}

// CreateStorage creates a storage instance based on the configured type
func (sf *StorageFactory) CreateStorage() (BlobStorage, error) {
	switch sf.config.Type {
	case "local":
		storage, err := NewLocalStorage(sf.config.LocalPath, sf.config.LocalBaseURL)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case "azure":
		if sf.config.ConnectionString == "" {
			return nil, fmt.Errorf("azure storage requires a connection string")
		}
		storage, err := NewAzureStorage(sf.config.ConnectionString)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case "s3":
		storage, err := NewS3Storage(S3Options{
			Region:         sf.config.Region,
			Endpoint:       sf.config.Endpoint,
			AccessKey:      sf.config.AccessKey,
			SecretKey:      sf.config.SecretKey,
			ForcePathStyle: sf.config.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sf.config.Type)
	}
}
