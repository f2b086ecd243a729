// Package filestore stores named files in containers of a blob storage
// service. Every container has a private variant and a public variant, the
// latter named with PublicSuffix and readable anonymously per blob.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lgulliver/filestore/internal/metrics"
	"github.com/lgulliver/filestore/internal/storage"
	"github.com/lgulliver/filestore/pkg/types"
)

// PublicSuffix is appended to a container name to address its public variant
const PublicSuffix = "-public"

// FileStore is a façade over a BlobStorage client
type FileStore struct {
	storage storage.BlobStorage
	logger  zerolog.Logger
	metrics *metrics.StoreMetrics
}

// Container is a resolved container handle
type Container struct {
	Name string
	URL  string
}

// New creates a FileStore backed by the given storage client
func New(backend storage.BlobStorage, opts ...StoreOption) *FileStore {
	fs := &FileStore{
		storage: backend,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// ContainerName returns the effective container name
func ContainerName(name string, public bool) string {
	if public {
		return name + PublicSuffix
	}
	return name
}

// ContainerForID returns the container name for a UUID-keyed container
func ContainerForID(id uuid.UUID) string {
	return id.String()
}

// Container resolves a container, creating it if needed. A public container
// is given blob-level anonymous read access when this call creates it.
func (fs *FileStore) Container(ctx context.Context, name string, opts ...Option) (c *Container, err error) {
	o := collect(opts)
	defer fs.track("container", time.Now(), &err)

	return fs.container(ctx, name, o.public)
}

func (fs *FileStore) container(ctx context.Context, name string, public bool) (*Container, error) {
	effective := ContainerName(name, public)

	created, err := fs.storage.CreateContainerIfNotExists(ctx, effective)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", effective, err)
	}

	if created {
		fs.logger.Info().Str("container", effective).Bool("public", public).Msg("Created container")
		if public {
			if err := fs.storage.SetContainerAccess(ctx, effective, storage.AccessBlob); err != nil {
				return nil, fmt.Errorf("failed to set public access on %s: %w", effective, err)
			}
		}
	}

	return &Container{
		Name: effective,
		URL:  fs.storage.ContainerURL(effective),
	}, nil
}

// PutString uploads text content as UTF-8 and returns the file's URI
func (fs *FileStore) PutString(ctx context.Context, container, filename, content string, opts ...Option) (uri string, err error) {
	o := collect(opts)
	defer fs.track("put", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return "", err
	}
	return fs.put(ctx, c, filename, strings.NewReader(content), o.condition)
}

// Put uploads the remaining content of r and returns the file's URI
func (fs *FileStore) Put(ctx context.Context, container, filename string, r io.Reader, opts ...Option) (uri string, err error) {
	o := collect(opts)
	defer fs.track("put", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return "", err
	}
	return fs.put(ctx, c, filename, r, o.condition)
}

// PutFile uploads a local file and returns the stored file's URI
func (fs *FileStore) PutFile(ctx context.Context, container, filename, path string, opts ...Option) (uri string, err error) {
	o := collect(opts)
	defer fs.track("put", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return fs.put(ctx, c, filename, f, o.condition)
}

func (fs *FileStore) put(ctx context.Context, c *Container, filename string, r io.Reader, cond storage.AccessCondition) (string, error) {
	counter := &countingReader{r: r}
	if err := fs.storage.Upload(ctx, c.Name, filename, counter, cond); err != nil {
		return "", fmt.Errorf("failed to upload %s/%s: %w", c.Name, filename, err)
	}

	contentType := ContentTypeFor(filename)
	if err := fs.storage.SetContentType(ctx, c.Name, filename, contentType); err != nil {
		return "", fmt.Errorf("failed to set content type of %s/%s: %w", c.Name, filename, err)
	}

	if fs.metrics != nil {
		fs.metrics.BytesUploaded.Add(float64(counter.n))
	}

	fs.logger.Debug().
		Str("container", c.Name).
		Str("file", filename).
		Str("content_type", contentType).
		Int64("size", counter.n).
		Msg("Stored file")

	return fs.storage.BlobURL(c.Name, filename), nil
}

// GetString downloads a file and decodes it as text. A byte order mark
// overrides the configured encoding.
func (fs *FileStore) GetString(ctx context.Context, container, filename string, opts ...Option) (content string, err error) {
	o := collect(opts)
	defer fs.track("get", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := fs.get(ctx, c, filename, &buf, nil); err != nil {
		return "", err
	}

	enc := o.encoding
	if enc == nil {
		enc = unicode.UTF8
	}
	decoded, err := io.ReadAll(transform.NewReader(&buf, unicode.BOMOverride(enc.NewDecoder())))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s/%s: %w", c.Name, filename, err)
	}
	return string(decoded), nil
}

// Get writes the file's content to w and returns its properties as they
// were before the download
func (fs *FileStore) Get(ctx context.Context, container, filename string, w io.Writer, opts ...Option) (item *types.FileItem, err error) {
	o := collect(opts)
	defer fs.track("get", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return nil, err
	}
	return fs.get(ctx, c, filename, w, o.onItem)
}

func (fs *FileStore) get(ctx context.Context, c *Container, filename string, w io.Writer, onItem func(*types.FileItem)) (*types.FileItem, error) {
	props, err := fs.storage.GetProperties(ctx, c.Name, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to get properties of %s/%s: %w", c.Name, filename, err)
	}

	item := fs.fileItem(c, props)
	if onItem != nil {
		onItem(&item)
	}

	n, err := fs.storage.Download(ctx, c.Name, filename, w)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s/%s: %w", c.Name, filename, err)
	}

	if fs.metrics != nil {
		fs.metrics.BytesDownloaded.Add(float64(n))
	}
	return &item, nil
}

// Stat returns a file's properties without downloading it
func (fs *FileStore) Stat(ctx context.Context, container, filename string, opts ...Option) (item *types.FileItem, err error) {
	o := collect(opts)
	defer fs.track("stat", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return nil, err
	}

	props, err := fs.storage.GetProperties(ctx, c.Name, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to get properties of %s/%s: %w", c.Name, filename, err)
	}

	fi := fs.fileItem(c, props)
	return &fi, nil
}

// Delete removes a file, reporting whether it existed
func (fs *FileStore) Delete(ctx context.Context, container, filename string, opts ...Option) (deleted bool, err error) {
	o := collect(opts)
	defer fs.track("delete", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return false, err
	}

	exists, err := fs.storage.Exists(ctx, c.Name, filename)
	if err != nil {
		return false, fmt.Errorf("failed to check %s/%s: %w", c.Name, filename, err)
	}
	if !exists {
		return false, nil
	}

	if err := fs.storage.Delete(ctx, c.Name, filename); err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", c.Name, filename, err)
	}

	fs.logger.Debug().Str("container", c.Name).Str("file", filename).Msg("Deleted file")
	return true, nil
}

// List returns every file in the container whose name starts with prefix,
// ordered by name. Names containing slashes are listed flat.
func (fs *FileStore) List(ctx context.Context, container, prefix string, opts ...Option) (items []types.FileItem, err error) {
	o := collect(opts)
	defer fs.track("list", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return nil, err
	}

	blobs, err := fs.storage.List(ctx, c.Name, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.Name, err)
	}

	items = make([]types.FileItem, 0, len(blobs))
	for i := range blobs {
		items = append(items, fs.fileItem(c, &blobs[i]))
	}
	slices.SortFunc(items, func(a, b types.FileItem) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

// URL returns the anonymous address of a file in the public variant of the
// container. The file is not required to exist.
func (fs *FileStore) URL(ctx context.Context, container, filename string) (uri string, err error) {
	defer fs.track("url", time.Now(), &err)

	c, err := fs.container(ctx, container, true)
	if err != nil {
		return "", err
	}
	return c.URL + "/" + filename, nil
}

// Exists reports whether a file exists
func (fs *FileStore) Exists(ctx context.Context, container, filename string, opts ...Option) (exists bool, err error) {
	o := collect(opts)
	defer fs.track("exists", time.Now(), &err)

	c, err := fs.container(ctx, container, o.public)
	if err != nil {
		return false, err
	}

	exists, err = fs.storage.Exists(ctx, c.Name, filename)
	if err != nil {
		return false, fmt.Errorf("failed to check %s/%s: %w", c.Name, filename, err)
	}
	return exists, nil
}

// DeleteContainer removes a container and all of its files if it exists.
// It reports whether the container existed.
func (fs *FileStore) DeleteContainer(ctx context.Context, name string, opts ...Option) (deleted bool, err error) {
	o := collect(opts)
	defer fs.track("delete_container", time.Now(), &err)

	effective := ContainerName(name, o.public)
	deleted, err = fs.storage.DeleteContainerIfExists(ctx, effective)
	if err != nil {
		return false, fmt.Errorf("failed to delete container %s: %w", effective, err)
	}

	if deleted {
		fs.logger.Info().Str("container", effective).Msg("Deleted container")
	}
	return deleted, nil
}

func (fs *FileStore) fileItem(c *Container, props *storage.BlobProperties) types.FileItem {
	uri := props.URL
	if uri == "" {
		uri = fs.storage.BlobURL(c.Name, props.Name)
	}
	return types.FileItem{
		Name:         props.Name,
		Container:    c.Name,
		URI:          uri,
		LastModified: props.LastModified,
		Length:       props.ContentLength,
		ContentType:  props.ContentType,
	}
}

// track records the outcome of an operation once it returns
func (fs *FileStore) track(op string, start time.Time, errp *error) {
	status := statusOf(*errp)
	if fs.metrics != nil {
		fs.metrics.OperationsTotal.WithLabelValues(op, status).Inc()
	}

	event := fs.logger.Debug()
	if status == "error" {
		event = fs.logger.Error().Err(*errp)
	}
	event.Str("operation", op).
		Str("status", status).
		Dur("duration", time.Since(start)).
		Msg("File store operation")
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrConditionNotMet):
		return "condition_not_met"
	default:
		return "error"
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
