// Package docstore keeps uploaded document content behind opaque handles.
// Requests only ever carry the handle.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"robline/internal/domain"
)

type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

var ErrNotFound = errors.New("document not found")

// Store is the document-storage provider.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (domain.DocumentRef, error)
	Get(ctx context.Context, handle string) (domain.DocumentRef, io.ReadCloser, error)
	Head(ctx context.Context, handle string) (domain.DocumentRef, error)
	Delete(ctx context.Context, handle string) error
	Driver() Driver
}

// Config selects and configures a Store.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the Store named by cfg.Driver. Filesystem is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("unknown document driver %s", cfg.Driver)
}

// newHandle derives a unique object key that keeps the file extension.
func newHandle(name string) string {
	ext := strings.ToLower(path.Ext(sanitizeName(name)))
	return "documents/" + uuid.NewString() + ext
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	if name == "" {
		return "document"
	}
	return name
}

func validHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return errors.New("empty document handle")
	}
	if strings.Contains(handle, "..") || strings.HasPrefix(handle, "/") {
		return fmt.Errorf("invalid document handle %q", handle)
	}
	return nil
}
