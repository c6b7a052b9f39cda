// Package store holds the shared files behind the fileshare.Store interface.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fileshare/internal/fileshare"
)

// FileSystemStore keeps every stored file directly under one directory:
//
//	<root>/
//	  <owner>_<basename>
//	  .tmp-*            (in-flight writes, never listed)
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates the shared directory if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create shared directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// Root returns the shared directory.
func (s *FileSystemStore) Root() string {
	return s.root
}

func (s *FileSystemStore) path(name string) (string, error) {
	if err := fileshare.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// Put writes exactly size bytes using an atomic write (temp file + rename),
// so a failed transfer leaves the previous content in place.
func (s *FileSystemStore) Put(name string, r io.Reader, size int64) error {
	destPath, err := s.path(name)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.CopyN(tmpFile, r, size)
	if err != nil {
		tmpFile.Close()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d: %w", size, written, fileshare.ErrShortTransfer)
		}
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Open returns the named file and its size.
func (s *FileSystemStore) Open(name string) (io.ReadCloser, int64, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
	}
	return f, info.Size(), nil
}

// Stat returns the size of the named file.
func (s *FileSystemStore) Stat(name string) (int64, error) {
	p, err := s.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
	}
	return info.Size(), nil
}

// Delete removes the named file.
func (s *FileSystemStore) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the names of regular files in the shared directory.
// Hidden entries (including in-flight temp files) are skipped.
func (s *FileSystemStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read shared directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ValidateSetup verifies that the shared directory is accessible.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("shared directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("shared directory is not a directory: %s", s.root)
	}
	return nil
}

var _ fileshare.Store = (*FileSystemStore)(nil)
