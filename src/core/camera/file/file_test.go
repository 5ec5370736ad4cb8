package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/core/camera"
)

func TestDriverReplaysInOrder(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"b.jpg":     "second",
		"a.jpg":     "first",
		"notes.txt": "ignored",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	driver, _, err := camera.Create("file", &configs.CameraConfig{Type: "file", Dir: dir})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := driver.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	want := []string{"first", "second", "first"}
	for i, w := range want {
		frame, err := driver.Grab(context.Background())
		if err != nil {
			t.Fatalf("grab %d: %v", i, err)
		}
		if string(frame) != w {
			t.Fatalf("grab %d = %q, want %q", i, frame, w)
		}
	}
}

func TestDriverEmptyDirectory(t *testing.T) {
	driver, err := NewDriver(&camera.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := driver.Open(context.Background()); err == nil {
		t.Fatalf("expected open to fail on an empty directory")
	}
}

func TestDriverRequiresDir(t *testing.T) {
	if _, err := NewDriver(&camera.Config{}); err == nil {
		t.Fatalf("expected error without dir")
	}
}
