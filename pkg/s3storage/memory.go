package s3storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStorage keeps blobs in process memory with the same surface as
// MinIOClient. The server uses it in the "test" environment.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) UploadAudio(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	objectName := ObjectName(key)
	m.objects[objectName] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
	}

	return objectName, nil
}

func (m *MemoryStorage) OpenAudio(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[ObjectName(key)]
	if !ok {
		return nil, ErrObjectNotFound
	}

	return &Object{
		ReadCloser:  io.NopCloser(bytes.NewReader(obj.data)),
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

func (m *MemoryStorage) AudioExists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[ObjectName(key)]
	return ok, nil
}
