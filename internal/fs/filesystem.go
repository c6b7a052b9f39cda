// Package fs resolves the local files a client uploads and writes the files it downloads.
package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFile is a resolved regular file on the client's disk.
type LocalFile struct {
	Path string // absolute path
	Name string // base name, used as the upload name
	Size int64
}

// Resolve validates a raw path and returns the regular file it names.
func Resolve(rawPath string) (*LocalFile, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		return nil, fmt.Errorf("directories not supported: %s", absPath)
	case mode&os.ModeSymlink != 0:
		return nil, fmt.Errorf("symlinks not supported: %s", absPath)
	case mode&os.ModeDevice != 0:
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	case mode&os.ModeNamedPipe != 0:
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	case mode&os.ModeSocket != 0:
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	case !mode.IsRegular():
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	return &LocalFile{Path: absPath, Name: filepath.Base(absPath), Size: info.Size()}, nil
}

// Open opens the file for reading.
func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Download is a file being written into a destination directory.
// Until Commit is called the bytes live in a hidden temp file.
type Download struct {
	file *os.File
	dest string
	done bool
}

// CreateDownload prepares to write name into destDir, creating the directory if needed.
// An existing file of the same name is replaced on Commit.
func CreateDownload(destDir, name string) (*Download, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid download name %q", name)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	f, err := os.CreateTemp(destDir, ".part-*")
	if err != nil {
		return nil, fmt.Errorf("creating download file: %w", err)
	}
	return &Download{file: f, dest: filepath.Join(destDir, name)}, nil
}

func (d *Download) Write(p []byte) (int, error) {
	return d.file.Write(p)
}

// Path returns where the file lands once committed.
func (d *Download) Path() string {
	return d.dest
}

// Commit flushes the file and moves it into place.
func (d *Download) Commit() error {
	if d.done {
		return fmt.Errorf("download already finished: %s", d.dest)
	}
	d.done = true
	if err := d.file.Sync(); err != nil {
		d.file.Close()
		os.Remove(d.file.Name())
		return fmt.Errorf("syncing download: %w", err)
	}
	if err := d.file.Close(); err != nil {
		os.Remove(d.file.Name())
		return fmt.Errorf("closing download: %w", err)
	}
	if err := os.Rename(d.file.Name(), d.dest); err != nil {
		os.Remove(d.file.Name())
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}

// Abort discards the partial file. It is a no-op after Commit.
func (d *Download) Abort() {
	if d.done {
		return
	}
	d.done = true
	d.file.Close()
	os.Remove(d.file.Name())
}
