package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestGenerateUUID(t *testing.T) {
	a, b := GenerateUUID(), GenerateUUID()
	if a == b {
		t.Error("Expected distinct UUIDs")
	}
	if !IsUUID(a) || len(a) != 36 {
		t.Errorf("Expected a 36-char UUID, got %q", a)
	}
	if IsUUID("not-a-uuid") {
		t.Error("Expected invalid UUID to be rejected")
	}
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.wav", "a.WAV", "notes.txt", filepath.Join("sub", "c.mp3")} {
		path := filepath.Join(root, name)
		if err := MakeDir(filepath.Dir(path)); err != nil {
			t.Fatalf("MakeDir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	got, err := FindFiles(root, ".wav", ".mp3")
	if err != nil {
		t.Fatalf("FindFiles failed: %v", err)
	}
	want := []string{
		filepath.Join(root, "a.WAV"),
		filepath.Join(root, "b.wav"),
		filepath.Join(root, "sub", "c.mp3"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tmp")
	dst := filepath.Join(dir, "dst.wav")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("Expected destination to exist: %v", err)
	}
	if err := MoveFile(src, dst); err == nil {
		t.Error("Expected error moving a missing file")
	}
}
