package fileshare

import (
	"errors"
	"testing"
)

func TestStoredName(t *testing.T) {
	f := StoredFile{Owner: "alice", BaseName: "report.pdf"}
	if got := f.Name(); got != "alice_report.pdf" {
		t.Errorf("Name() = %q, want %q", got, "alice_report.pdf")
	}
}

func TestIsOwner(t *testing.T) {
	tests := []struct {
		name     string
		username string
		file     string
		want     bool
	}{
		{name: "owner", username: "alice", file: "alice_report.pdf", want: true},
		{name: "other user", username: "bob", file: "alice_report.pdf", want: false},
		{name: "prefix without separator", username: "ali", file: "alice_report.pdf", want: false},
		{name: "no separator", username: "alice", file: "alicereport.pdf", want: false},
		{name: "basename with separator", username: "alice", file: "alice_my_report.pdf", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOwner(tt.username, tt.file); got != tt.want {
				t.Errorf("IsOwner(%q, %q) = %v, want %v", tt.username, tt.file, got, tt.want)
			}
		})
	}
}

func TestOwnerOf(t *testing.T) {
	tests := []struct {
		file      string
		wantOwner string
		wantOK    bool
	}{
		{file: "alice_report.pdf", wantOwner: "alice", wantOK: true},
		{file: "bob_a_b_c", wantOwner: "bob", wantOK: true},
		{file: "noowner.txt", wantOK: false},
		{file: "_leading", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			owner, ok := OwnerOf(tt.file)
			if ok != tt.wantOK || owner != tt.wantOwner {
				t.Errorf("OwnerOf(%q) = (%q, %v), want (%q, %v)", tt.file, owner, ok, tt.wantOwner, tt.wantOK)
			}
		})
	}
}

func TestParseStoredName(t *testing.T) {
	f, err := ParseStoredName("alice_my_report.pdf")
	if err != nil {
		t.Fatalf("ParseStoredName() error = %v", err)
	}
	if f.Owner != "alice" || f.BaseName != "my_report.pdf" {
		t.Errorf("ParseStoredName() = %+v", f)
	}

	if _, err := ParseStoredName("plain.txt"); !errors.Is(err, ErrProtocol) {
		t.Errorf("ParseStoredName(plain.txt) error = %v, want ErrProtocol", err)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: "report.pdf", wantErr: false},
		{name: "alice_report.pdf", wantErr: false},
		{name: "", wantErr: true},
		{name: "..", wantErr: true},
		{name: "../etc/passwd", wantErr: true},
		{name: "dir/file", wantErr: true},
		{name: `dir\file`, wantErr: true},
		{name: ".tmp-123", wantErr: true},
		{name: "a|b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		wantErr  bool
	}{
		{username: "alice", wantErr: false},
		{username: "", wantErr: true},
		{username: "bad_name", wantErr: true},
		{username: "pipe|name", wantErr: true},
		{username: "slash/name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 0, want: "0.00 B"},
		{in: 1023, want: "1023.00 B"},
		{in: 1536, want: "1.50 KB"},
		{in: 1024 * 1024, want: "1.00 MB"},
		{in: 5 * 1024 * 1024 * 1024 * 1024 * 1024, want: "5120.00 TB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
