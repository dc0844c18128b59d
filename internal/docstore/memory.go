package docstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"robline/internal/domain"
)

type memoryDoc struct {
	ref  domain.DocumentRef
	data []byte
}

type Memory struct {
	mu   sync.RWMutex
	docs map[string]memoryDoc
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]memoryDoc{}}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(_ context.Context, name, contentType string, r io.Reader) (domain.DocumentRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	ref := domain.DocumentRef{
		Handle:      newHandle(name),
		Name:        sanitizeName(name),
		Size:        int64(len(data)),
		ContentType: contentType,
	}
	m.mu.Lock()
	m.docs[ref.Handle] = memoryDoc{ref: ref, data: data}
	m.mu.Unlock()
	return ref, nil
}

func (m *Memory) Get(_ context.Context, handle string) (domain.DocumentRef, io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[handle]
	if !ok {
		return domain.DocumentRef{}, nil, ErrNotFound
	}
	return d.ref, io.NopCloser(bytes.NewReader(d.data)), nil
}

func (m *Memory) Head(_ context.Context, handle string) (domain.DocumentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[handle]
	if !ok {
		return domain.DocumentRef{}, ErrNotFound
	}
	return d.ref, nil
}

func (m *Memory) Delete(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[handle]; !ok {
		return ErrNotFound
	}
	delete(m.docs, handle)
	return nil
}
