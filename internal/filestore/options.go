package filestore

import (
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"

	"github.com/lgulliver/filestore/internal/metrics"
	"github.com/lgulliver/filestore/internal/storage"
	"github.com/lgulliver/filestore/pkg/types"
)

// StoreOption configures a FileStore
type StoreOption func(*FileStore)

// WithLogger sets the logger used for operation logs
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(fs *FileStore) {
		fs.logger = logger
	}
}

// WithMetrics records operation counts and byte totals
func WithMetrics(m *metrics.StoreMetrics) StoreOption {
	return func(fs *FileStore) {
		fs.metrics = m
	}
}

// Option adjusts a single FileStore call
type Option func(*callOptions)

type callOptions struct {
	public    bool
	condition storage.AccessCondition
	encoding  encoding.Encoding
	onItem    func(*types.FileItem)
}

func collect(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Public addresses the public variant of the container
func Public() Option {
	return PublicAccess(true)
}

// PublicAccess addresses the public variant of the container when public is true
func PublicAccess(public bool) Option {
	return func(o *callOptions) {
		o.public = public
	}
}

// WithAccessCondition guards uploads with an ETag condition
func WithAccessCondition(cond storage.AccessCondition) Option {
	return func(o *callOptions) {
		o.condition = cond
	}
}

// WithEncoding sets the text encoding GetString decodes with. UTF-8 is the default.
func WithEncoding(enc encoding.Encoding) Option {
	return func(o *callOptions) {
		o.encoding = enc
	}
}

// BeforeDownload calls fn with the file's properties once they are known and
// before any content is written by Get. fn is not called for a missing file.
func BeforeDownload(fn func(item *types.FileItem)) Option {
	return func(o *callOptions) {
		o.onItem = fn
	}
}
