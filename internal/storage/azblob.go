package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBackend stores chunks as individual blobs in a single container.
// Selected by STORAGE_BACKEND=azblob.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

var _ Backend = (*AzureBackend)(nil)

// NewAzureBackend builds a client from account credentials discovered
// via the default Azure credential chain.
func NewAzureBackend(accountURL, container string, cred azcore.TokenCredential) (*AzureBackend, error) {
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create azblob client: %w", err)
	}
	return &AzureBackend{client: client, container: container}, nil
}

func (b *AzureBackend) Store(ctx context.Context, key Key, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key.name(), data, nil)
	if err != nil {
		return fmt.Errorf("azblob upload %s: %w", key.name(), err)
	}
	return nil
}

func (b *AzureBackend) Retrieve(ctx context.Context, key Key) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key.name(), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("azblob download %s: %w", key.name(), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read azblob body: %w", err)
	}
	return data, nil
}
