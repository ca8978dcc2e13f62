package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage persists upload bytes on the local filesystem. Stored names are
// generated, never derived from client input.
type Storage struct {
	dir string
}

// NewStorage constructs a Storage rooted at dir, creating it if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create storage dir: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Save streams src to a new file and returns the generated stored name.
func (s *Storage) Save(src io.Reader, ext string) (string, int64, error) {
	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", 0, err
	}
	return name, size, nil
}

// Open returns a reader over a stored file.
func (s *Storage) Open(storedAs string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, filepath.Base(storedAs)))
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Storage) Remove(storedAs string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(storedAs)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
