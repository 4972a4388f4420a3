// Package filestore persists uploaded shipment documents on the local
// filesystem under a single uploads directory.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidName     = errors.New("invalid file name")
)

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".xlsx": {},
	".csv":  {},
	".txt":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// Store writes and reads uploaded files. Stored names are prefixed with
// a UUID, so two uploads of the same file never collide.
type Store struct {
	dir string
}

// NewStore creates the uploads directory if needed and returns a Store
// over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Save persists the file and returns the stored name to reference it by.
func (s *Store) Save(data []byte, originalName string) (string, error) {
	base := filepath.Base(originalName)
	if base == "." || base == ".." || base == "" || strings.ContainsAny(base, `/\`) {
		return "", ErrInvalidName
	}

	extension := strings.ToLower(filepath.Ext(base))
	if _, ok := allowedExtensions[extension]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, extension)
	}

	storedName := uuid.NewString() + "_" + base
	if err := os.WriteFile(filepath.Join(s.dir, storedName), data, 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}

	return storedName, nil
}

// Read returns the contents of a stored file.
func (s *Store) Read(storedName string) ([]byte, error) {
	if filepath.Base(storedName) != storedName {
		return nil, ErrInvalidName
	}

	data, err := os.ReadFile(filepath.Join(s.dir, storedName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", os.ErrNotExist, storedName)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return data, nil
}
