package fileshare

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OwnerSeparator joins the owner and the original basename in a stored name.
const OwnerSeparator = "_"

// StoredFile is a file in the shared directory. Ownership is encoded
// entirely in the stored name; there is no separate metadata record.
type StoredFile struct {
	Owner    string
	BaseName string
	Size     int64
}

// Name returns the physical name of the file: <owner>_<basename>.
func (f StoredFile) Name() string {
	return StoredName(f.Owner, f.BaseName)
}

// StoredName derives the canonical stored name from the uploader identity.
func StoredName(owner, baseName string) string {
	return owner + OwnerSeparator + baseName
}

// IsOwner reports whether username owns the stored file name.
func IsOwner(username, name string) bool {
	return strings.HasPrefix(name, username+OwnerSeparator)
}

// OwnerOf returns the owner prefix of a stored name, i.e. everything before
// the first separator. A name without a separator has no owner.
func OwnerOf(name string) (string, bool) {
	owner, _, ok := strings.Cut(name, OwnerSeparator)
	if !ok || owner == "" {
		return "", false
	}
	return owner, true
}

// ParseStoredName splits a stored name into its owner and original basename.
func ParseStoredName(name string) (StoredFile, error) {
	owner, base, ok := strings.Cut(name, OwnerSeparator)
	if !ok || owner == "" || base == "" {
		return StoredFile{}, fmt.Errorf("%w: not a stored file name: %q", ErrProtocol, name)
	}
	return StoredFile{Owner: owner, BaseName: base}, nil
}

// ValidateName rejects names that would escape the flat shared directory.
// Directory hierarchies are not supported.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: invalid file name %q", ErrProtocol, name)
	}
	if strings.ContainsAny(name, "|\r\n") {
		return fmt.Errorf("%w: file name contains a reserved character: %q", ErrProtocol, name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: file name must not contain a path: %q", ErrProtocol, name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: hidden file names are not allowed: %q", ErrProtocol, name)
	}
	return nil
}

// ValidateUsername checks a claimed identity. The separator is rejected so
// that the owner prefix of a stored name is always unambiguous.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrProtocol)
	}
	if strings.Contains(username, OwnerSeparator) || strings.ContainsAny(username, "|/\\\r\n") {
		return fmt.Errorf("%w: username contains a reserved character: %q", ErrProtocol, username)
	}
	return nil
}
