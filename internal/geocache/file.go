package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores the cache as one JSON object in a file, token to
// {"center":[lon,lat],"label":...} for resolved entries and
// {"negative":true,"cachedAt":unix} for negative ones. A bare null also
// loads as a negative entry.
type FileBackend struct {
	path string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the cache file. A missing file is an empty cache; malformed
// individual entries are skipped.
func (b *FileBackend) Load(ctx context.Context) (map[string]Entry, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var raw map[string]*record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}

	out := make(map[string]Entry, len(raw))
	for token, r := range raw {
		if e, ok := decode(r); ok {
			out[token] = e
		}
	}
	return out, nil
}

// Save writes entries to a temporary file and renames it into place.
func (b *FileBackend) Save(ctx context.Context, entries map[string]Entry) error {
	raw := make(map[string]*record, len(entries))
	for token, e := range entries {
		r := encode(e)
		if !e.Negative {
			r.CachedAt = 0
		}
		raw[token] = &r
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".geocache-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
