package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"stealthcompany.com/labportal/internal/model"
)

type object struct {
	data []byte
	ref  model.FileRef
}

// Memory is a FileStore kept in a map
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]object{}}
}

func (m *Memory) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (model.FileRef, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return model.FileRef{}, fmt.Errorf("read upload: %w", err)
	}
	ref := model.FileRef{
		Key:         key,
		Name:        path.Base(key),
		Size:        n,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	}
	m.mu.Lock()
	m.objects[key] = object{data: buf.Bytes(), ref: ref}
	m.mu.Unlock()
	return ref, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]model.FileRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FileRef, 0)
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, o.ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return "memory://" + key, nil
}

// Bytes returns the stored content, for tests
func (m *Memory) Bytes(key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].data
}

var _ FileStore = (*Memory)(nil)
