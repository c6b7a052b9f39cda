package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fileshare/internal/config"
	"fileshare/internal/fileshare"
)

func TestServerAndClientApp(t *testing.T) {
	base := t.TempDir()
	cfg := config.NewConfig(base)
	cfg.Server.ListenAddr = "127.0.0.1:0"

	sa, err := NewServerApp(cfg, LogOptions{})
	if err != nil {
		t.Fatalf("NewServerApp() error = %v", err)
	}
	defer sa.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sa.Run(ctx, "") }()

	select {
	case <-sa.Server().Ready():
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	}
	addr := sa.Server().Addr().String()

	ca, err := NewClientApp(cfg, ClientHooks{}, LogOptions{})
	if err != nil {
		t.Fatalf("NewClientApp() error = %v", err)
	}
	if err := ca.Connect(context.Background(), addr, "alice"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if _, err := ca.Client().UploadReader(context.Background(), "a.txt", bytes.NewReader([]byte("hello")), 5); err != nil {
		t.Fatalf("UploadReader() error = %v", err)
	}
	if err := ca.Close(); err != nil {
		t.Errorf("ClientApp.Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, "shared", "alice_a.txt"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("stored content = %q", data)
	}

	var ops []*fileshare.OperationRecord
	deadline := time.Now().Add(3 * time.Second)
	for {
		ops, err = History(cfg, 10)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(ops) == 1 && ops[0].Status == fileshare.StatusSuccess {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("History() = %d operations, want 1 finished upload", len(ops))
		}
		time.Sleep(20 * time.Millisecond)
	}
	if ops[0].Operation != "UPLOAD" || ops[0].Username != "alice" {
		t.Errorf("History()[0] = %+v", ops[0])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	logData, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	for _, want := range []string{"\tserver\tserver listening", "\tclient\tconnected"} {
		if !strings.Contains(string(logData), want) {
			t.Errorf("log missing %q", want)
		}
	}
}

func TestNewServerApp_InvalidConfig(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())
	cfg.Server.ListenAddr = ":80"

	if _, err := NewServerApp(cfg, LogOptions{}); err == nil {
		t.Error("NewServerApp() expected error for privileged port, got nil")
	}
}

func TestHistory_JournalDisabled(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())
	cfg.Journal.Type = "none"

	if _, err := History(cfg, 10); err == nil {
		t.Error("History() expected error when journal is disabled")
	}
}
