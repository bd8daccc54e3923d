package storage

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

const attachmentContainer = "project-files"

// BlobStore holds task attachments in Azure Blob Storage. The container
// is publicly readable; PublicURL returns the direct link stored in the
// attachment row.
type BlobStore struct {
	client    *azblob.Client
	container string
}

// NewBlobStore creates a BlobStore from the given connection string.
func NewBlobStore(connStr string) (*BlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, err
	}
	return &BlobStore{client: client, container: attachmentContainer}, nil
}

func (b *BlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, opts)
	return err
}

func (b *BlobStore) PublicURL(key string) string {
	return strings.TrimSuffix(b.client.ServiceClient().URL(), "/") + "/" + b.container + "/" + key
}
