package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	localContainersDir = ".containers"
	localBlobsDir      = ".blobs"
	localTempDir       = ".tmp"
	defaultContentType = "application/octet-stream"
)

var containerNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{1,61}[a-z0-9])$`)

// LocalStorage implements BlobStorage on the local filesystem. Each container
// is a directory under basePath; blob and container metadata live in hidden
// sibling trees so they never show up in listings.
type LocalStorage struct {
	basePath string
	baseURL  string
	mutex    sync.RWMutex
}

type localContainerMeta struct {
	Access    string    `json:"access"`
	CreatedAt time.Time `json:"created_at"`
}

type localBlobMeta struct {
	ContentType string `json:"content_type"`
	ETag        string `json:"etag"`
}

// NewLocalStorage creates a new local storage instance. baseURL is the prefix
// used for container and blob URLs; a file:// URL of basePath is used when empty.
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	for _, dir := range []string{basePath, filepath.Join(basePath, localTempDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error().Err(err).Str("path", dir).Msg("failed to create storage directory")
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	if baseURL == "" {
		abs, err := filepath.Abs(basePath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage path: %w", err)
		}
		baseURL = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}

	log.Info().Str("path", basePath).Str("base_url", baseURL).Msg("local storage initialized")
	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// CreateContainerIfNotExists creates the container directory
func (ls *LocalStorage) CreateContainerIfNotExists(ctx context.Context, container string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateContainerName(container); err != nil {
		return false, err
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	dir := ls.containerPath(container)
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("container", container).Msg("failed to create container")
		return false, fmt.Errorf("failed to create container: %w", err)
	}
	meta := localContainerMeta{Access: AccessPrivate.String(), CreatedAt: time.Now().UTC()}
	if err := writeJSON(ls.containerMetaPath(container), meta); err != nil {
		return false, fmt.Errorf("failed to write container metadata: %w", err)
	}

	log.Info().Str("container", container).Msg("container created")
	return true, nil
}

// SetContainerAccess records the access level of the container
func (ls *LocalStorage) SetContainerAccess(ctx context.Context, container string, access AccessLevel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateContainerName(container); err != nil {
		return err
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	if !ls.containerExists(container) {
		return fmt.Errorf("container %s: %w", container, ErrNotFound)
	}

	var meta localContainerMeta
	if err := readJSON(ls.containerMetaPath(container), &meta); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read container metadata: %w", err)
	}
	meta.Access = access.String()
	if err := writeJSON(ls.containerMetaPath(container), meta); err != nil {
		return fmt.Errorf("failed to write container metadata: %w", err)
	}

	log.Debug().Str("container", container).Str("access", meta.Access).Msg("container access updated")
	return nil
}

// ContainerAccess returns the recorded access level of the container
func (ls *LocalStorage) ContainerAccess(container string) (AccessLevel, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	var meta localContainerMeta
	if err := readJSON(ls.containerMetaPath(container), &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AccessPrivate, fmt.Errorf("container %s: %w", container, ErrNotFound)
		}
		return AccessPrivate, err
	}
	if meta.Access == AccessBlob.String() {
		return AccessBlob, nil
	}
	return AccessPrivate, nil
}

// DeleteContainerIfExists removes the container and all of its blobs
func (ls *LocalStorage) DeleteContainerIfExists(ctx context.Context, container string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateContainerName(container); err != nil {
		return false, err
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	if !ls.containerExists(container) {
		return false, nil
	}

	for _, p := range []string{
		ls.containerPath(container),
		filepath.Join(ls.basePath, localBlobsDir, container),
		ls.containerMetaPath(container),
	} {
		if err := os.RemoveAll(p); err != nil {
			log.Error().Err(err).Str("container", container).Str("path", p).Msg("failed to delete container")
			return false, fmt.Errorf("failed to delete container: %w", err)
		}
	}

	log.Info().Str("container", container).Msg("container deleted")
	return true, nil
}

// ContainerURL returns baseURL/container
func (ls *LocalStorage) ContainerURL(container string) string {
	return ls.baseURL + "/" + url.PathEscape(container)
}

// BlobURL returns baseURL/container/name with each name segment escaped
func (ls *LocalStorage) BlobURL(container, name string) string {
	return ls.ContainerURL(container) + "/" + escapeBlobName(name)
}

// Upload saves content with an atomic rename and records its SHA-256 as the ETag
func (ls *LocalStorage) Upload(ctx context.Context, container, name string, content io.Reader, cond AccessCondition) error {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := ls.blobPath(container, name)
	if err != nil {
		return err
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	if !ls.containerExists(container) {
		return fmt.Errorf("container %s: %w", container, ErrNotFound)
	}

	current, exists, err := ls.currentETag(container, name)
	if err != nil {
		return err
	}
	if err := cond.Check(current, exists); err != nil {
		log.Debug().Str("container", container).Str("name", name).Str("etag", current).Msg("upload rejected by access condition")
		return fmt.Errorf("upload %s/%s: %w", container, name, err)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		log.Error().Err(err).Str("name", name).Msg("failed to create directory")
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if info, err := os.Stat(fullPath); err == nil && info.IsDir() {
		// Only an empty directory can be removed; one holding blobs keeps the name taken.
		if err := os.Remove(fullPath); err != nil {
			log.Debug().Err(err).Str("container", container).Str("name", name).Msg("blob name is a directory of other blobs")
			return fmt.Errorf("blob name %q is a prefix of other blobs: %w", name, ErrInvalidName)
		}
	}

	tempFile, err := os.CreateTemp(filepath.Join(ls.basePath, localTempDir), "upload-*")
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("failed to create temporary file")
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		tempFile.Close()
		if _, err := os.Stat(tempPath); err == nil {
			os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	bytesWritten, err := io.Copy(io.MultiWriter(tempFile, hasher), content)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("failed to write content to temporary file")
		return fmt.Errorf("failed to write content: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		log.Error().Err(err).Str("name", name).Msg("failed to sync temporary file")
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, fullPath); err != nil {
		log.Error().Err(err).Str("name", name).Str("temp_path", tempPath).Msg("failed to move temporary file to final location")
		return fmt.Errorf("failed to move file to final location: %w", err)
	}

	etag := `"` + hex.EncodeToString(hasher.Sum(nil)) + `"`
	meta := localBlobMeta{ContentType: defaultContentType, ETag: etag}
	if err := writeJSON(ls.blobMetaPath(container, name), meta); err != nil {
		return fmt.Errorf("failed to write blob metadata: %w", err)
	}

	log.Info().
		Str("container", container).
		Str("name", name).
		Int64("bytes_written", bytesWritten).
		Str("etag", etag).
		Dur("duration", time.Since(startTime)).
		Msg("blob stored successfully")

	return nil
}

// SetContentType rewrites the content type in the blob's metadata
func (ls *LocalStorage) SetContentType(ctx context.Context, container, name, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := ls.blobPath(container, name)
	if err != nil {
		return err
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	if _, err := ls.statBlob(container, name, fullPath); err != nil {
		return err
	}

	meta, err := ls.readBlobMeta(container, name)
	if err != nil {
		return err
	}
	meta.ContentType = contentType
	if err := writeJSON(ls.blobMetaPath(container, name), meta); err != nil {
		return fmt.Errorf("failed to write blob metadata: %w", err)
	}
	return nil
}

// GetProperties returns metadata for a single blob
func (ls *LocalStorage) GetProperties(ctx context.Context, container, name string) (*BlobProperties, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := ls.blobPath(container, name)
	if err != nil {
		return nil, err
	}

	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	info, err := ls.statBlob(container, name, fullPath)
	if err != nil {
		return nil, err
	}

	meta, err := ls.readBlobMeta(container, name)
	if err != nil {
		return nil, err
	}
	return ls.properties(container, name, info, meta), nil
}

// Download copies the blob to w
func (ls *LocalStorage) Download(ctx context.Context, container, name string, w io.Writer) (int64, error) {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := ls.blobPath(container, name)
	if err != nil {
		return 0, err
	}

	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	if _, err := ls.statBlob(container, name, fullPath); err != nil {
		return 0, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
		}
		log.Error().Err(err).Str("name", name).Msg("failed to open file")
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(w, file)
	if err != nil {
		return n, fmt.Errorf("failed to read blob: %w", err)
	}

	log.Debug().
		Str("container", container).
		Str("name", name).
		Int64("size", n).
		Dur("duration", time.Since(startTime)).
		Msg("blob retrieved successfully")

	return n, nil
}

// Exists checks if the blob file exists
func (ls *LocalStorage) Exists(ctx context.Context, container, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullPath, err := ls.blobPath(container, name)
	if err != nil {
		return false, err
	}

	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		log.Error().Err(err).Str("name", name).Msg("failed to check file existence")
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return !info.IsDir(), nil
}

// Delete removes the blob and its metadata
func (ls *LocalStorage) Delete(ctx context.Context, container, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := ls.blobPath(container, name)
	if err != nil {
		return err
	}

	ls.mutex.Lock()
	defer ls.mutex.Unlock()

	if _, err := ls.statBlob(container, name, fullPath); err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
		}
		log.Error().Err(err).Str("name", name).Msg("failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}
	metaPath := ls.blobMetaPath(container, name)
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("name", name).Msg("failed to delete blob metadata")
	}

	pruneEmptyDirs(filepath.Dir(fullPath), ls.containerPath(container))
	pruneEmptyDirs(filepath.Dir(metaPath), filepath.Join(ls.basePath, localBlobsDir, container))

	log.Info().Str("container", container).Str("name", name).Msg("blob deleted successfully")
	return nil
}

// List walks the container directory and returns blobs whose name has the prefix
func (ls *LocalStorage) List(ctx context.Context, container, prefix string) ([]BlobProperties, error) {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateContainerName(container); err != nil {
		return nil, err
	}

	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	if !ls.containerExists(container) {
		return nil, fmt.Errorf("container %s: %w", container, ErrNotFound)
	}

	root := ls.containerPath(container)
	var blobs []BlobProperties

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				log.Debug().Err(err).Str("path", path).Msg("skipping inaccessible path")
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		meta, err := ls.readBlobMeta(container, name)
		if err != nil {
			return err
		}
		blobs = append(blobs, *ls.properties(container, name, info, meta))
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("container", container).Str("prefix", prefix).Msg("failed to list blobs")
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })

	log.Debug().
		Str("container", container).
		Str("prefix", prefix).
		Int("count", len(blobs)).
		Dur("duration", time.Since(startTime)).
		Msg("blobs listed successfully")

	return blobs, nil
}

func (ls *LocalStorage) properties(container, name string, info os.FileInfo, meta localBlobMeta) *BlobProperties {
	modTime := info.ModTime().UTC()
	return &BlobProperties{
		Name:          name,
		URL:           ls.BlobURL(container, name),
		ContentType:   meta.ContentType,
		ContentLength: info.Size(),
		LastModified:  &modTime,
		ETag:          meta.ETag,
	}
}

func (ls *LocalStorage) currentETag(container, name string) (string, bool, error) {
	fullPath, _ := ls.blobPath(container, name)
	if _, err := ls.statBlob(container, name, fullPath); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	meta, err := ls.readBlobMeta(container, name)
	if err != nil {
		return "", true, err
	}
	return meta.ETag, true, nil
}

// statBlob stats the blob's file. Directories left by nested names are not blobs.
func (ls *LocalStorage) statBlob(container, name, fullPath string) (os.FileInfo, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("container", container).Str("name", name).Msg("blob not found")
			return nil, fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
		}
		log.Error().Err(err).Str("name", name).Msg("failed to get file info")
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if info.IsDir() {
		log.Debug().Str("container", container).Str("name", name).Msg("blob name is a directory")
		return nil, fmt.Errorf("blob %s/%s: %w", container, name, ErrNotFound)
	}
	return info, nil
}

// pruneEmptyDirs removes dir and its empty parents, stopping at root
func pruneEmptyDirs(dir, root string) {
	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (ls *LocalStorage) readBlobMeta(container, name string) (localBlobMeta, error) {
	meta := localBlobMeta{ContentType: defaultContentType}
	if err := readJSON(ls.blobMetaPath(container, name), &meta); err != nil && !errors.Is(err, os.ErrNotExist) {
		return meta, fmt.Errorf("failed to read blob metadata: %w", err)
	}
	return meta, nil
}

func (ls *LocalStorage) containerExists(container string) bool {
	info, err := os.Stat(ls.containerPath(container))
	return err == nil && info.IsDir()
}

func (ls *LocalStorage) containerPath(container string) string {
	return filepath.Join(ls.basePath, container)
}

func (ls *LocalStorage) containerMetaPath(container string) string {
	return filepath.Join(ls.basePath, localContainersDir, container+".json")
}

func (ls *LocalStorage) blobMetaPath(container, name string) string {
	return filepath.Join(ls.basePath, localBlobsDir, container, filepath.FromSlash(name)+".json")
}

func (ls *LocalStorage) blobPath(container, name string) (string, error) {
	if err := validateContainerName(container); err != nil {
		return "", err
	}
	if name == "" || strings.HasSuffix(name, "/") || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("blob name %q: %w", name, ErrInvalidName)
	}
	return filepath.Join(ls.containerPath(container), filepath.FromSlash(name)), nil
}

func validateContainerName(container string) error {
	if !containerNamePattern.MatchString(container) || strings.Contains(container, "--") {
		return fmt.Errorf("container name %q: %w", container, ErrInvalidName)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
