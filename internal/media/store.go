// Package media stores uploaded images on the local filesystem and serves
// them under a stable public URL prefix. Group icons and technique photos go
// through here.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmatlab/rollflow/internal/service"
	"go.uber.org/zap"
)

const (
	opStoreNew = "media.store.new"
	opSave     = "media.save"

	// maxUploadBytes bounds a single upload. Icons and training photos are
	// small; anything larger is rejected before touching disk.
	maxUploadBytes = 8 << 20
)

var (
	// ErrUnsupportedType indicates a content type outside the allow list.
	ErrUnsupportedType = errors.New("media: unsupported content type")
	// ErrTooLarge indicates an upload over the size bound.
	ErrTooLarge = errors.New("media: upload too large")
	// ErrEmptyUpload indicates a zero-byte upload.
	ErrEmptyUpload = errors.New("media: empty upload")

	noOpLogger = zap.NewNop()
)

// extensions maps accepted content types to on-disk extensions.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// StoreConfig bundles the dependencies for the media store.
type StoreConfig struct {
	Directory  string
	BaseURL    string
	IDProvider service.IDProvider
	Logger     *zap.Logger
}

// Store writes uploads to a directory and hands back their public URLs.
type Store struct {
	directory  string
	baseURL    string
	idProvider service.IDProvider
	logger     *zap.Logger
}

// NewStore ensures the target directory exists and constructs the store.
func NewStore(cfg StoreConfig) (*Store, error) {
	directory := strings.TrimSpace(cfg.Directory)
	if directory == "" {
		return nil, service.NewError(opStoreNew, "missing_directory", errors.New("media directory is required"))
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, service.NewError(opStoreNew, "mkdir_failed", err)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = service.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		directory:  directory,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// Directory returns the on-disk root, for static file serving.
func (s *Store) Directory() string {
	return s.directory
}

// Save writes an upload under a generated name and returns its public URL.
func (s *Store) Save(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", service.NewError(opSave, "empty_upload", ErrEmptyUpload)
	}
	if len(data) > maxUploadBytes {
		return "", service.NewError(opSave, "too_large", ErrTooLarge)
	}
	extension, ok := extensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", service.NewError(opSave, "unsupported_type", ErrUnsupportedType)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return "", service.NewError(opSave, "id_generation_failed", err)
	}
	name := id + extension
	path := filepath.Join(s.directory, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("media write failed", zap.String("path", path), zap.Error(err))
		return "", service.NewError(opSave, "write_failed", err)
	}
	s.logger.Debug("stored media file", zap.String("name", name), zap.Int("bytes", len(data)))
	return fmt.Sprintf("%s/%s", s.baseURL, name), nil
}
