package wire

import (
	"fmt"
	"strconv"
	"strings"

	"fileshare/internal/fileshare"
)

// FieldSeparator splits the fields of a command line.
const FieldSeparator = "|"

// Verb is the first field of a command.
type Verb string

const (
	VerbList     Verb = "LIST"
	VerbUpload   Verb = "UPLOAD"
	VerbDownload Verb = "DOWNLOAD"
	VerbDelete   Verb = "DELETE"
	VerbUpdate   Verb = "UPDATE"
	VerbExit     Verb = "EXIT"
)

// Command is one decoded client request.
//
//	LIST
//	UPLOAD|name|size
//	DOWNLOAD|name
//	DELETE|name
//	UPDATE|oldName|newName|size
//	EXIT
type Command struct {
	Verb    Verb
	Name    string // file name; for UPDATE the stored name being replaced
	NewName string // UPDATE only: basename of the replacement on the client
	Size    int64  // UPLOAD and UPDATE only
}

// List, Upload, Download, Delete, Update and Exit build commands.
func List() Command { return Command{Verb: VerbList} }

func Upload(name string, size int64) Command {
	return Command{Verb: VerbUpload, Name: name, Size: size}
}

func Download(name string) Command { return Command{Verb: VerbDownload, Name: name} }

func Delete(name string) Command { return Command{Verb: VerbDelete, Name: name} }

func Update(oldName, newName string, size int64) Command {
	return Command{Verb: VerbUpdate, Name: oldName, NewName: newName, Size: size}
}

func Exit() Command { return Command{Verb: VerbExit} }

// Encode renders the command line.
func (c Command) Encode() string {
	switch c.Verb {
	case VerbUpload:
		return join(string(c.Verb), c.Name, strconv.FormatInt(c.Size, 10))
	case VerbDownload, VerbDelete:
		return join(string(c.Verb), c.Name)
	case VerbUpdate:
		return join(string(c.Verb), c.Name, c.NewName, strconv.FormatInt(c.Size, 10))
	default:
		return string(c.Verb)
	}
}

// Frame wraps the encoded command in a command frame.
func (c Command) Frame() Frame {
	return NewTextFrame(FrameCommand, c.Encode())
}

// HasBody reports whether file bytes follow the command on the stream.
func (c Command) HasBody() bool {
	return c.Verb == VerbUpload || c.Verb == VerbUpdate
}

// ParseCommand decodes a command line. Wrong field counts, unknown verbs
// and non-numeric or negative sizes return an error wrapping ErrProtocol.
// For a known verb the returned Command still carries Verb on error, so the
// caller can tell whether a body follows the rejected line.
func ParseCommand(line string) (Command, error) {
	fields := strings.Split(line, FieldSeparator)
	verb := Verb(fields[0])

	want := map[Verb]int{
		VerbList:     1,
		VerbExit:     1,
		VerbDownload: 2,
		VerbDelete:   2,
		VerbUpload:   3,
		VerbUpdate:   4,
	}
	n, ok := want[verb]
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown command %q", fileshare.ErrProtocol, fields[0])
	}
	if len(fields) != n {
		return Command{Verb: verb}, fmt.Errorf("%w: %s expects %d fields, got %d", fileshare.ErrProtocol, verb, n, len(fields))
	}

	cmd := Command{Verb: verb}
	switch verb {
	case VerbDownload, VerbDelete:
		cmd.Name = fields[1]
	case VerbUpload:
		cmd.Name = fields[1]
		size, err := parseSize(fields[2])
		if err != nil {
			return Command{Verb: verb}, err
		}
		cmd.Size = size
	case VerbUpdate:
		cmd.Name = fields[1]
		cmd.NewName = fields[2]
		size, err := parseSize(fields[3])
		if err != nil {
			return Command{Verb: verb}, err
		}
		cmd.Size = size
	}

	if n > 1 && cmd.Name == "" {
		return Command{Verb: verb}, fmt.Errorf("%w: %s requires a file name", fileshare.ErrProtocol, verb)
	}
	return cmd, nil
}

func parseSize(s string) (int64, error) {
	size, err := strconv.ParseInt(s, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: invalid size %q", fileshare.ErrProtocol, s)
	}
	return size, nil
}

func join(fields ...string) string {
	return strings.Join(fields, FieldSeparator)
}
