package media

import (
	"context"
	"sync"
)

// FakeStore keeps objects in memory. Failures can be injected per operation.
type FakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	UploadErr error
	DeleteErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{objects: map[string][]byte{}}
}

func (f *FakeStore) Upload(ctx context.Context, path string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	f.objects[path] = append([]byte(nil), data...)
	return f.URL(path), nil
}

func (f *FakeStore) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.objects, path)
	return nil
}

func (f *FakeStore) URL(path string) string {
	return "fake://" + path
}

func (f *FakeStore) Has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok
}
