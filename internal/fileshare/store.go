package fileshare

import "io"

// Store is the shared directory holding every stored file.
// All operations stream through io.Reader so large files are never held in memory.
// Names are flat; callers validate them with ValidateName first.
type Store interface {
	// Put stores exactly size bytes read from r under name, replacing any
	// previous content. On error the previous content is left in place.
	Put(name string, r io.Reader, size int64) error

	// Open returns a reader for the named file and its size.
	// Returns ErrNotFound if the file does not exist.
	Open(name string) (io.ReadCloser, int64, error)

	// Stat returns the size of the named file, or ErrNotFound.
	Stat(name string) (int64, error)

	// Delete removes the named file, or returns ErrNotFound.
	Delete(name string) error

	// List returns every stored file name, sorted.
	List() ([]string, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup() error
}
