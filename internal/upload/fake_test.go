package upload

import (
	"context"
	"os"
	"sync"
)

// memUploader records uploads in memory. Keys listed in fail return the
// mapped error.
type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[string]error
}

func newMemUploader() *memUploader {
	return &memUploader{objects: map[string][]byte{}, fail: map[string]error{}}
}

func (m *memUploader) UploadFile(_ context.Context, localPath, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[key]; ok {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memUploader) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}
