package convert

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const manifestFileName = ".epub2md.json"

// Record stores the outcome of one converted book.
type Record struct {
	Slug        string    `json:"slug"`
	Path        string    `json:"path"`
	Sections    int       `json:"sections"`
	ConvertedAt time.Time `json:"converted_at"`
}

// Manifest persists conversion records in the output directory, keyed by
// source content hash, so unchanged books can be skipped on the next run.
type Manifest struct {
	path string
	data map[string]Record
	mu   sync.RWMutex
}

// OpenManifest creates or loads the manifest for an output directory. A
// corrupt manifest file is discarded rather than failing the run.
func OpenManifest(outputDir string) (*Manifest, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("convert: create output dir: %w", err)
	}
	m := &Manifest{
		path: filepath.Join(outputDir, manifestFileName),
		data: make(map[string]Record),
	}
	if err := m.load(); err != nil {
		m.data = make(map[string]Record)
	}
	return m, nil
}

// ComputeHash digests a source file's entire contents.
func ComputeHash(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}

// Converted reports whether a source hash has a recorded conversion.
func (m *Manifest) Converted(hash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[hash]
	return ok
}

// Lookup returns the record for a source hash, if any.
func (m *Manifest) Lookup(hash string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[hash]
	return rec, ok
}

// Record stores a conversion result and persists the manifest.
func (m *Manifest) Record(hash string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ConvertedAt.IsZero() {
		rec.ConvertedAt = time.Now().UTC()
	}
	m.data[hash] = rec
	return m.save()
}

// Clear removes a recorded conversion.
func (m *Manifest) Clear(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, hash)
	return m.save()
}

func (m *Manifest) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &m.data)
}

func (m *Manifest) save() error {
	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}
