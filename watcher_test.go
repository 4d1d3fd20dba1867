package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInputWatcher_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanners.txt")
	if err := os.WriteFile(path, []byte("--- scanner 0 ---\n"), 0644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan struct{}, 1)
	w, err := NewInputWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewInputWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Writes to other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("callback fired for an unrelated file")
	case <-time.After(3 * inputDebounce):
	}

	if err := os.WriteFile(path, []byte("--- scanner 0 ---\n1,2,3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("callback not fired after writing the watched file")
	}
}

func TestInputWatcher_StartMissingDir(t *testing.T) {
	w, err := NewInputWatcher(filepath.Join(t.TempDir(), "nope", "scanners.txt"), func() {})
	if err != nil {
		t.Fatalf("NewInputWatcher: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Error("Start should fail when the directory does not exist")
	}
}
