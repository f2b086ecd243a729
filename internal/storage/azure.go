package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog/log"
)

// AzureStorage implements BlobStorage on Azure Blob Storage. Blobs are
// written as block blobs.
type AzureStorage struct {
	client *azblob.Client
}

// NewAzureStorage creates a client from a storage account connection string
func NewAzureStorage(connectionString string) (*AzureStorage, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	log.Info().Str("url", client.URL()).Msg("azure storage initialized")
	return &AzureStorage{client: client}, nil
}

func (a *AzureStorage) containerClient(name string) *container.Client {
	return a.client.ServiceClient().NewContainerClient(name)
}

func (a *AzureStorage) blockBlobClient(containerName, name string) *blockblob.Client {
	return a.containerClient(containerName).NewBlockBlobClient(name)
}

// CreateContainerIfNotExists creates a private container
func (a *AzureStorage) CreateContainerIfNotExists(ctx context.Context, containerName string) (bool, error) {
	_, err := a.containerClient(containerName).Create(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return false, nil
		}
		return false, translateAzureError(err)
	}

	log.Info().Str("container", containerName).Msg("container created")
	return true, nil
}

// SetContainerAccess sets the container's public access type
func (a *AzureStorage) SetContainerAccess(ctx context.Context, containerName string, access AccessLevel) error {
	opts := &container.SetAccessPolicyOptions{}
	if access == AccessBlob {
		opts.Access = to.Ptr(container.PublicAccessTypeBlob)
	}
	if _, err := a.containerClient(containerName).SetAccessPolicy(ctx, opts); err != nil {
		return translateAzureError(err)
	}
	return nil
}

// DeleteContainerIfExists deletes the container
func (a *AzureStorage) DeleteContainerIfExists(ctx context.Context, containerName string) (bool, error) {
	if _, err := a.containerClient(containerName).Delete(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.ContainerBeingDeleted) {
			return false, nil
		}
		return false, translateAzureError(err)
	}
	return true, nil
}

// ContainerURL returns the container endpoint
func (a *AzureStorage) ContainerURL(containerName string) string {
	return a.containerClient(containerName).URL()
}

// BlobURL returns the blob endpoint. Slashes in the name stay unescaped.
func (a *AzureStorage) BlobURL(containerName, name string) string {
	return a.ContainerURL(containerName) + "/" + escapeBlobName(name)
}

// Upload streams content into a block blob
func (a *AzureStorage) Upload(ctx context.Context, containerName, name string, content io.Reader, cond AccessCondition) error {
	opts := &blockblob.UploadStreamOptions{}
	if !cond.IsZero() {
		opts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: azureModifiedAccessConditions(cond),
		}
	}

	if _, err := a.blockBlobClient(containerName, name).UploadStream(ctx, content, opts); err != nil {
		return translateAzureError(err)
	}
	return nil
}

// SetContentType replaces the blob's HTTP headers with one carrying contentType
func (a *AzureStorage) SetContentType(ctx context.Context, containerName, name, contentType string) error {
	headers := blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
	if _, err := a.blockBlobClient(containerName, name).SetHTTPHeaders(ctx, headers, nil); err != nil {
		return translateAzureError(err)
	}
	return nil
}

// GetProperties fetches blob attributes
func (a *AzureStorage) GetProperties(ctx context.Context, containerName, name string) (*BlobProperties, error) {
	client := a.blockBlobClient(containerName, name)
	resp, err := client.GetProperties(ctx, nil)
	if err != nil {
		return nil, translateAzureError(err)
	}

	props := &BlobProperties{
		Name:         name,
		URL:          a.BlobURL(containerName, name),
		LastModified: resp.LastModified,
	}
	if resp.ContentType != nil {
		props.ContentType = *resp.ContentType
	}
	if resp.ContentLength != nil {
		props.ContentLength = *resp.ContentLength
	}
	if resp.ETag != nil {
		props.ETag = string(*resp.ETag)
	}
	return props, nil
}

// Download streams the blob to w
func (a *AzureStorage) Download(ctx context.Context, containerName, name string, w io.Writer) (int64, error) {
	resp, err := a.blockBlobClient(containerName, name).DownloadStream(ctx, nil)
	if err != nil {
		return 0, translateAzureError(err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read blob: %w", err)
	}
	return n, nil
}

// Exists checks the blob with a properties request
func (a *AzureStorage) Exists(ctx context.Context, containerName, name string) (bool, error) {
	_, err := a.blockBlobClient(containerName, name).GetProperties(ctx, nil)
	if err != nil {
		if is404(err) {
			return false, nil
		}
		return false, translateAzureError(err)
	}
	return true, nil
}

// Delete removes the blob together with its snapshots
func (a *AzureStorage) Delete(ctx context.Context, containerName, name string) error {
	opts := &blob.DeleteOptions{DeleteSnapshots: to.Ptr(blob.DeleteSnapshotsOptionTypeInclude)}
	if _, err := a.blockBlobClient(containerName, name).Delete(ctx, opts); err != nil {
		return translateAzureError(err)
	}
	return nil
}

// List pages through a flat listing of the container
func (a *AzureStorage) List(ctx context.Context, containerName, prefix string) ([]BlobProperties, error) {
	startTime := time.Now()
	client := a.containerClient(containerName)

	opts := &container.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}

	var blobs []BlobProperties
	pager := client.NewListBlobsFlatPager(opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translateAzureError(err)
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			props := BlobProperties{
				Name: *item.Name,
				URL:  a.BlobURL(containerName, *item.Name),
			}
			if p := item.Properties; p != nil {
				props.LastModified = p.LastModified
				if p.ContentType != nil {
					props.ContentType = *p.ContentType
				}
				if p.ContentLength != nil {
					props.ContentLength = *p.ContentLength
				}
				if p.ETag != nil {
					props.ETag = string(*p.ETag)
				}
			}
			blobs = append(blobs, props)
		}
	}

	log.Debug().
		Str("container", containerName).
		Str("prefix", prefix).
		Int("count", len(blobs)).
		Dur("duration", time.Since(startTime)).
		Msg("blobs listed successfully")

	return blobs, nil
}

func azureModifiedAccessConditions(cond AccessCondition) *blob.ModifiedAccessConditions {
	mac := &blob.ModifiedAccessConditions{}
	if cond.IfMatch != "" {
		mac.IfMatch = to.Ptr(azcore.ETag(cond.IfMatch))
	}
	if cond.IfNoneMatch != "" {
		mac.IfNoneMatch = to.Ptr(azcore.ETag(cond.IfNoneMatch))
	}
	return mac
}

// translateAzureError maps service error codes onto the package sentinels,
// keeping the original error in the chain
func translateAzureError(err error) error {
	switch {
	case err == nil:
		return nil
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return errors.Join(ErrNotFound, err)
	case bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.BlobAlreadyExists, bloberror.TargetConditionNotMet):
		return errors.Join(ErrConditionNotMet, err)
	case bloberror.HasCode(err, bloberror.InvalidResourceName, bloberror.OutOfRangeInput):
		return errors.Join(ErrInvalidName, err)
	case is404(err):
		return errors.Join(ErrNotFound, err)
	}
	return err
}

func is404(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
