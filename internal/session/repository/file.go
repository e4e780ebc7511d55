package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pickup-portal/client/internal/session/domain"
)

// fileDocument is the on-disk layout of a FileRepository.
type fileDocument struct {
	Items   map[string]string        `json:"items"`
	Cookies map[string]domain.Cookie `json:"cookies"`
}

// FileRepository persists the session as a single JSON document so it survives between runs.
// The document is read once on open and rewritten (temp file + rename) on every change.
type FileRepository struct {
	mu   sync.RWMutex
	path string
	doc  fileDocument
}

// NewFileRepository opens (or lazily creates) the session file at path.
// A missing file is an empty session; a corrupt file is an error.
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		return nil, errors.New("repository: file path is empty")
	}
	r := &FileRepository{
		path: path,
		doc: fileDocument{
			Items:   make(map[string]string),
			Cookies: make(map[string]domain.Cookie),
		},
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("repository: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r.doc); err != nil {
		return nil, fmt.Errorf("repository: decode %s: %w", path, err)
	}
	if r.doc.Items == nil {
		r.doc.Items = make(map[string]string)
	}
	if r.doc.Cookies == nil {
		r.doc.Cookies = make(map[string]domain.Cookie)
	}
	return r, nil
}

// Path returns the backing file path.
func (r *FileRepository) Path() string { return r.path }

// Get returns the value for key and whether it exists.
func (r *FileRepository) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.doc.Items[key]
	return v, ok, nil
}

// Set stores value under key and flushes the document.
func (r *FileRepository) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Items[key] = value
	return r.flushLocked()
}

// Delete removes the given keys and flushes the document if anything changed.
func (r *FileRepository) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for _, k := range keys {
		if _, ok := r.doc.Items[k]; ok {
			delete(r.doc.Items, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return r.flushLocked()
}

// GetCookie returns a copy of the named cookie, or nil.
func (r *FileRepository) GetCookie(ctx context.Context, name string) (*domain.Cookie, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.doc.Cookies[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// SetCookie stores c and flushes the document.
func (r *FileRepository) SetCookie(ctx context.Context, c domain.Cookie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Cookies[c.Name] = c
	return r.flushLocked()
}

// DeleteCookie removes the named cookie and flushes the document if it existed.
func (r *FileRepository) DeleteCookie(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doc.Cookies[name]; !ok {
		return nil
	}
	delete(r.doc.Cookies, name)
	return r.flushLocked()
}

func (r *FileRepository) flushLocked() error {
	raw, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("repository: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("repository: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("repository: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("repository: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("repository: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("repository: replace %s: %w", r.path, err)
	}
	return nil
}
