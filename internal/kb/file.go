package kb

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// FileStore persists phrases as a JSON array in a single file, replaced in
// full on every write via write-to-temp-then-rename. Safe for a single
// writer; cross-process writers are not supported.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() ([]Phrase, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Phrase{}, nil
		}
		return nil, eris.Wrapf(err, "kb: read %s", s.path)
	}

	var phrases []Phrase
	if err := json.Unmarshal(data, &phrases); err != nil {
		return nil, eris.Wrapf(err, "kb: parse %s", s.path)
	}
	return phrases, nil
}

func (s *FileStore) ReplaceAll(phrases []Phrase) error {
	data, err := json.MarshalIndent(phrases, "", "  ")
	if err != nil {
		return eris.Wrap(err, "kb: marshal phrases")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "kb: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".phrases-*.json")
	if err != nil {
		return eris.Wrap(err, "kb: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "kb: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "kb: close temp file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "kb: rename into %s", s.path)
	}
	return nil
}
