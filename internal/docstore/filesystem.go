package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"robline/internal/domain"
)

// Filesystem stores content under root with a JSON sidecar per document.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./documents"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFilesystem }

func (s *Filesystem) paths(handle string) (string, string, error) {
	if err := validHandle(handle); err != nil {
		return "", "", err
	}
	data := filepath.Join(s.root, filepath.FromSlash(handle))
	return data, data + ".meta", nil
}

func (s *Filesystem) Put(_ context.Context, name, contentType string, r io.Reader) (domain.DocumentRef, error) {
	ref := domain.DocumentRef{Handle: newHandle(name), Name: sanitizeName(name), ContentType: contentType}
	dataPath, metaPath, err := s.paths(ref.Handle)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return domain.DocumentRef{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return domain.DocumentRef{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return domain.DocumentRef{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return domain.DocumentRef{}, err
	}
	ref.Size = size
	meta, err := json.Marshal(ref)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return domain.DocumentRef{}, err
	}
	return ref, nil
}

func (s *Filesystem) Head(_ context.Context, handle string) (domain.DocumentRef, error) {
	_, metaPath, err := s.paths(handle)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	data, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DocumentRef{}, ErrNotFound
	}
	if err != nil {
		return domain.DocumentRef{}, err
	}
	var ref domain.DocumentRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return domain.DocumentRef{}, err
	}
	return ref, nil
}

func (s *Filesystem) Get(ctx context.Context, handle string) (domain.DocumentRef, io.ReadCloser, error) {
	ref, err := s.Head(ctx, handle)
	if err != nil {
		return domain.DocumentRef{}, nil, err
	}
	dataPath, _, _ := s.paths(handle)
	f, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DocumentRef{}, nil, ErrNotFound
	}
	if err != nil {
		return domain.DocumentRef{}, nil, err
	}
	return ref, f, nil
}

func (s *Filesystem) Delete(_ context.Context, handle string) error {
	dataPath, metaPath, err := s.paths(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	_ = os.Remove(metaPath)
	return nil
}
