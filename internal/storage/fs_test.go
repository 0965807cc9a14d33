package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	key, err := s.Put("materials/abc.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "materials/abc.txt" {
		t.Fatalf("key = %q", key)
	}
	rc, err := s.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "hello" {
		t.Fatalf("got %q", b)
	}

	if _, err := s.Put("materials/abc.txt", strings.NewReader("again")); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "materials"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFSStoreMissing(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	if _, err := s.Get("materials/none.txt"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	for _, k := range []string{"", "  ", "../x", "/etc/passwd", "a/../../x", "..\\x"} {
		if _, err := s.Put(k, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) err = %v", k, err)
		}
	}
	if key, err := s.Put("a/./b/../c.txt", strings.NewReader("x")); err != nil || key != "a/c.txt" {
		t.Fatalf("key = %q err = %v", key, err)
	}
}
