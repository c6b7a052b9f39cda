package store

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"fileshare/internal/fileshare"
)

// testStoreContract exercises behavior every Store implementation shares.
func testStoreContract(t *testing.T, newStore func(t *testing.T) fileshare.Store) {
	t.Run("put then open returns identical content", func(t *testing.T) {
		s := newStore(t)
		data := []byte("hello world")

		if err := s.Put("alice_hello.txt", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		rc, size, err := s.Open("alice_hello.txt")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rc.Close()
		got, _ := io.ReadAll(rc)

		if size != int64(len(data)) {
			t.Errorf("size = %d, want %d", size, len(data))
		}
		if !bytes.Equal(got, data) {
			t.Errorf("content = %q, want %q", got, data)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put("alice_empty", strings.NewReader(""), 0); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		size, err := s.Stat("alice_empty")
		if err != nil || size != 0 {
			t.Errorf("Stat() = %d, %v; want 0, nil", size, err)
		}
	})

	t.Run("put replaces content in place", func(t *testing.T) {
		s := newStore(t)
		s.Put("alice_a.txt", strings.NewReader("first version"), 13)
		if err := s.Put("alice_a.txt", strings.NewReader("v2"), 2); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		size, _ := s.Stat("alice_a.txt")
		if size != 2 {
			t.Errorf("size after replace = %d, want 2", size)
		}
		names, _ := s.List()
		if len(names) != 1 {
			t.Errorf("List() = %v, want one entry", names)
		}
	})

	t.Run("short reader keeps previous content", func(t *testing.T) {
		s := newStore(t)
		s.Put("alice_a.txt", strings.NewReader("original"), 8)

		err := s.Put("alice_a.txt", strings.NewReader("short"), 100)
		if err == nil {
			t.Fatal("Put() expected error for short reader")
		}

		rc, _, err := s.Open("alice_a.txt")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rc.Close()
		got, _ := io.ReadAll(rc)
		if string(got) != "original" {
			t.Errorf("content = %q, want %q", got, "original")
		}
	})

	t.Run("missing file is not found", func(t *testing.T) {
		s := newStore(t)
		if _, _, err := s.Open("bob_missing"); !errors.Is(err, fileshare.ErrNotFound) {
			t.Errorf("Open() error = %v, want ErrNotFound", err)
		}
		if _, err := s.Stat("bob_missing"); !errors.Is(err, fileshare.ErrNotFound) {
			t.Errorf("Stat() error = %v, want ErrNotFound", err)
		}
		if err := s.Delete("bob_missing"); !errors.Is(err, fileshare.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete removes file", func(t *testing.T) {
		s := newStore(t)
		s.Put("alice_a.txt", strings.NewReader("x"), 1)

		if err := s.Delete("alice_a.txt"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Stat("alice_a.txt"); !errors.Is(err, fileshare.ErrNotFound) {
			t.Errorf("Stat() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"carol_c", "alice_a", "bob_b"} {
			s.Put(name, strings.NewReader("x"), 1)
		}

		names, err := s.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{"alice_a", "bob_b", "carol_c"}
		if !reflect.DeepEqual(names, want) {
			t.Errorf("List() = %v, want %v", names, want)
		}
	})

	t.Run("rejects path names", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put("../escape", strings.NewReader("x"), 1); !errors.Is(err, fileshare.ErrProtocol) {
			t.Errorf("Put() error = %v, want ErrProtocol", err)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := newStore(t).ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) fileshare.Store {
		return NewMemoryStore()
	})
}

func TestFileSystemStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) fileshare.Store {
		s, err := NewFileSystemStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		return s
	})
}

func TestS3Store(t *testing.T) {
	testStoreContract(t, func(t *testing.T) fileshare.Store {
		return NewS3Store(newFakeS3(), "shared", "files/")
	})
}
