package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrInvalidDocument = errors.New("invalid catalog document")

// ValidationError reports a malformed local document. It is fatal for the
// run in which it occurs.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid catalog document %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid catalog document: %s", e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDocument
}

// Document is the local catalog file: an ordered sequence of entries.
type Document struct {
	Apps []Entry `json:"apps"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{Apps: make([]Entry, 0, len(d.Apps))}
	for _, app := range d.Apps {
		out.Apps = append(out.Apps, app.Clone())
	}
	return out
}

// Store reads and writes the local catalog document. Writes ensure the
// parent directory exists and replace the whole file atomically.
type Store struct {
	fs   afero.Fs
	path string
}

func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, path: strings.TrimSpace(path)}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads and validates the catalog document. A missing file is an empty
// catalog, not an error; a structurally invalid file is a ValidationError.
func (s *Store) Load() (*Document, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Document{Apps: []Entry{}}, nil
		}
		return nil, err
	}
	if err := ValidateDocument(data); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Path = s.path
		}
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Path: s.path, Reason: err.Error()}
	}
	if doc.Apps == nil {
		doc.Apps = []Entry{}
	}
	return &doc, nil
}

// Save serializes and overwrites the catalog document.
func (s *Store) Save(doc *Document) error {
	if doc == nil {
		return &ValidationError{Path: s.path, Reason: "nil document"}
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(s.fs, s.path, data, 0o644)
}

// WriteJSON writes an ad-hoc JSON value next to the catalog with the same
// atomic-replace semantics, for downstream consumers.
func (s *Store) WriteJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	dir := filepath.Dir(path)
	if dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(s.fs, path, data, 0o644)
}

func writeFileAtomic(fs afero.Fs, path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = fs.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := fs.Chmod(tmpName, mode); err != nil {
		return err
	}
	if err := fs.Rename(tmpName, path); err != nil {
		// Some afero backends refuse to rename over an existing file.
		if removeErr := fs.Remove(path); removeErr != nil {
			return err
		}
		if err := fs.Rename(tmpName, path); err != nil {
			return err
		}
	}
	committed = true
	return nil
}
