package wire

import (
	"fmt"
	"strconv"
	"strings"

	"fileshare/internal/fileshare"
)

const (
	SuccessPrefix      = "SUCCESS: "
	ErrorPrefix        = "ERROR: "
	NotificationPrefix = "NOTIFICATION|"
	downloadPrefix     = string(VerbDownload) + FieldSeparator
)

// User-facing texts carried in SUCCESS and ERROR responses.
const (
	MsgConnected        = "Connection is successful!"
	MsgUsernameBlocked  = "This username has been used before and is blocked!"
	MsgUsernameTaken    = "This username is taken!"
	MsgPermissionDenied = "You do not have permission on this file."
	MsgNotFound         = "File cannot be found."
	MsgUploaded         = "File successfully uploaded!"
	MsgDeleted          = "File successfully deleted."
	MsgUpdated          = "File successfully updated!"
	MsgEmptyListing     = "There is no file in server."
)

// ResponseKind classifies a response payload.
type ResponseKind int

const (
	KindListing ResponseKind = iota
	KindSuccess
	KindError
	KindDownloadHeader
)

// Response is a decoded server reply.
type Response struct {
	Kind ResponseKind
	Text string // message after the prefix, or the raw listing
	Name string // download header only
	Size int64  // download header only
}

// Success and Failure render status lines.
func Success(text string) string { return SuccessPrefix + text }

func Failure(text string) string { return ErrorPrefix + text }

// SuccessFrame and ErrorFrame wrap status lines in response frames.
func SuccessFrame(text string) Frame { return NewTextFrame(FrameResponse, Success(text)) }

func ErrorFrame(text string) Frame { return NewTextFrame(FrameResponse, Failure(text)) }

// DownloadHeader renders the transfer header DOWNLOAD|name|size.
func DownloadHeader(name string, size int64) string {
	return join(string(VerbDownload), name, strconv.FormatInt(size, 10))
}

// Listing renders stored names as the LIST response. An empty directory
// yields MsgEmptyListing.
func Listing(names []string) string {
	if len(names) == 0 {
		return MsgEmptyListing
	}
	return strings.Join(names, "\n")
}

// ParseListing is the inverse of Listing.
func ParseListing(text string) []string {
	if strings.TrimSpace(text) == MsgEmptyListing {
		return nil
	}
	var names []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names
}

// ParseResponse classifies a response payload. Only a malformed download
// header is an error; anything without a known prefix is a listing.
func ParseResponse(s string) (Response, error) {
	switch {
	case strings.HasPrefix(s, SuccessPrefix):
		return Response{Kind: KindSuccess, Text: strings.TrimPrefix(s, SuccessPrefix)}, nil
	case strings.HasPrefix(s, ErrorPrefix):
		return Response{Kind: KindError, Text: strings.TrimPrefix(s, ErrorPrefix)}, nil
	case strings.HasPrefix(s, downloadPrefix):
		fields := strings.Split(s, FieldSeparator)
		if len(fields) != 3 || fields[1] == "" {
			return Response{}, fmt.Errorf("%w: malformed download header %q", fileshare.ErrProtocol, s)
		}
		size, err := parseSize(fields[2])
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: KindDownloadHeader, Name: fields[1], Size: size}, nil
	default:
		return Response{Kind: KindListing, Text: s}, nil
	}
}

// Notification renders an asynchronous notification line.
func Notification(text string) string { return NotificationPrefix + text }

// NotificationFrame wraps text in a notification frame.
func NotificationFrame(text string) Frame {
	return NewTextFrame(FrameNotification, Notification(text))
}

// ParseNotification returns the text of a NOTIFICATION| line.
func ParseNotification(s string) (string, bool) {
	if !strings.HasPrefix(s, NotificationPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, NotificationPrefix), true
}

// DownloadNotice tells an owner that someone is downloading their file.
func DownloadNotice(username, file string) string {
	return fmt.Sprintf("%s is downloading your %s file.", username, file)
}

// DeleteAttemptNotice tells an owner about an unauthorized delete.
func DeleteAttemptNotice(username, file string) string {
	return fmt.Sprintf("%s tried to delete your %s named file.", username, file)
}

// UpdateAttemptNotice tells an owner about an unauthorized update.
func UpdateAttemptNotice(username, file string) string {
	return fmt.Sprintf("%s tried to update your %s named file.", username, file)
}
