package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File persists all keys inside a single JSON document on disk. Saves write
// the whole document to a temp file and rename it into place so a crash
// mid-write never leaves a torn document behind.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

func NewFile(path string) (*File, error) {
	f := &File{path: path, values: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("read data file: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.values); err != nil {
			return nil, fmt.Errorf("parse data file %s: %w", path, err)
		}
	}
	return f, nil
}

func (f *File) Load(_ context.Context, key string, dest any) (bool, error) {
	f.mu.Lock()
	raw, ok := f.values[Namespaced(key)]
	f.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (f *File) Save(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.values[Namespaced(key)] = raw
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	doc, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".pharmastore-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *File) Close() error {
	return nil
}
