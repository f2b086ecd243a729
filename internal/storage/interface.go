package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a container or blob does not exist
	ErrNotFound = errors.New("not found")

	// ErrConditionNotMet is returned when an AccessCondition rejects a write
	ErrConditionNotMet = errors.New("access condition not met")

	// ErrInvalidName is returned for container or blob names a backend cannot address
	ErrInvalidName = errors.New("invalid name")
)

// AccessLevel is the anonymous read policy of a container
type AccessLevel int

const (
	// AccessPrivate allows no anonymous access
	AccessPrivate AccessLevel = iota
	// AccessBlob allows anonymous reads of individual blobs, but not listing
	AccessBlob
)

func (a AccessLevel) String() string {
	switch a {
	case AccessBlob:
		return "blob"
	default:
		return "private"
	}
}

// ETagAny matches any existing blob in an AccessCondition
const ETagAny = "*"

// AccessCondition guards a write. An empty condition always matches.
type AccessCondition struct {
	// IfMatch requires the existing blob to carry this ETag
	IfMatch string
	// IfNoneMatch rejects the write when the existing blob carries this ETag,
	// or when any blob exists if set to ETagAny
	IfNoneMatch string
}

// IsZero reports whether the condition has no constraints
func (c AccessCondition) IsZero() bool {
	return c.IfMatch == "" && c.IfNoneMatch == ""
}

// Check evaluates the condition against the ETag of the current blob.
// exists is false when there is no current blob.
func (c AccessCondition) Check(etag string, exists bool) error {
	if c.IfMatch != "" {
		if !exists || (c.IfMatch != ETagAny && c.IfMatch != etag) {
			return ErrConditionNotMet
		}
	}
	if c.IfNoneMatch != "" && exists {
		if c.IfNoneMatch == ETagAny || c.IfNoneMatch == etag {
			return ErrConditionNotMet
		}
	}
	return nil
}

// BlobProperties is the metadata a backend reports for a blob
type BlobProperties struct {
	Name          string
	URL           string
	ContentType   string
	ContentLength int64
	LastModified  *time.Time
	ETag          string
}

// BlobStorage is the client surface of a blob storage service. Containers
// are flat namespaces; blob names may contain slashes.
type BlobStorage interface {
	// CreateContainerIfNotExists creates a private container and reports
	// whether it was created by this call
	CreateContainerIfNotExists(ctx context.Context, container string) (bool, error)

	// SetContainerAccess changes the anonymous access policy of a container
	SetContainerAccess(ctx context.Context, container string, access AccessLevel) error

	// DeleteContainerIfExists removes a container and everything in it,
	// reporting whether it existed
	DeleteContainerIfExists(ctx context.Context, container string) (bool, error)

	// ContainerURL returns the address of a container
	ContainerURL(container string) string

	// BlobURL returns the address of a blob, ContainerURL followed by the
	// escaped name with its slashes kept
	BlobURL(container, name string) string

	// Upload writes content to a blob, replacing any existing content
	Upload(ctx context.Context, container, name string, content io.Reader, cond AccessCondition) error

	// SetContentType updates the content type of an existing blob
	SetContentType(ctx context.Context, container, name, contentType string) error

	// GetProperties fetches blob metadata
	GetProperties(ctx context.Context, container, name string) (*BlobProperties, error)

	// Download copies blob content to w
	Download(ctx context.Context, container, name string, w io.Writer) (int64, error)

	// Exists checks if a blob exists
	Exists(ctx context.Context, container, name string) (bool, error)

	// Delete removes a blob
	Delete(ctx context.Context, container, name string) error

	// List returns every blob in the container whose name starts with prefix.
	// ContentType may be empty where the service's listing omits it.
	List(ctx context.Context, container, prefix string) ([]BlobProperties, error)
}

// escapeBlobName path-escapes each slash-separated segment of a blob name
func escapeBlobName(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
