package tiles

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/jobrunner/regiond/internal/domain"
)

// AzureSource fetches tiles from an Azure Blob Storage container.
type AzureSource struct {
	client    *azblob.Client
	container string
	prefix    string
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// NewAzureSource creates a new Azure Blob Storage tile source.
func NewAzureSource(cfg AzureConfig) (*AzureSource, error) {
	var client *azblob.Client

	if cfg.ConnectionString != "" {
		c, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, err
		}
		client = c
	} else {
		serviceURL := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, err
		}
		c, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, err
		}
		client = c
	}

	return &AzureSource{
		client:    client,
		container: cfg.Container,
		prefix:    cfg.Prefix,
	}, nil
}

// Fetch downloads the blob stored under key.
func (s *AzureSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	blobName := joinKey(s.prefix, key)

	resp, err := s.client.DownloadStream(ctx, s.container, blobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTileNotFound, key)
		}
		return nil, fmt.Errorf("downloading blob %s: %w", blobName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return io.ReadAll(resp.Body)
}

// Name returns the source name.
func (s *AzureSource) Name() string {
	return "azure:" + s.container
}
