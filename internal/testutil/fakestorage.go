package testutil

import (
	"context"
	"fmt"
	"sync"
)

// StoredObject is an object held by FakeStorage.
type StoredObject struct {
	Data        []byte
	ContentType string
}

// FakeStorage is an in-memory media.Storage.
type FakeStorage struct {
	mu      sync.Mutex
	objects map[string]StoredObject
	puts    []string

	// PutErr fails every Put when set.
	PutErr error
	// FailPath fails Put for that path only.
	FailPath string
	// DeleteErr fails every Delete when set.
	DeleteErr error
	// OnPut runs before each Put is recorded.
	OnPut func(path string)
}

// NewFakeStorage creates an empty FakeStorage.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{objects: make(map[string]StoredObject)}
}

// Put implements media.Storage.
func (f *FakeStorage) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if f.OnPut != nil {
		f.OnPut(path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PutErr != nil {
		return "", f.PutErr
	}
	if f.FailPath != "" && f.FailPath == path {
		return "", fmt.Errorf("upload of %s failed", path)
	}
	f.objects[path] = StoredObject{Data: append([]byte(nil), data...), ContentType: contentType}
	f.puts = append(f.puts, path)
	return "https://storage.test/" + path, nil
}

// Delete implements media.Storage.
func (f *FakeStorage) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.objects[path]; !ok {
		return ErrNotFound
	}
	delete(f.objects, path)
	return nil
}

// Object returns the stored object at path.
func (f *FakeStorage) Object(path string) (StoredObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[path]
	return o, ok
}

// Puts returns the stored paths in completion order.
func (f *FakeStorage) Puts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}
