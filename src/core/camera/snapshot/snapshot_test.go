package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"rupiah-scanner/src/core/camera"
)

func TestDriverGrab(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	}))
	defer srv.Close()

	driver, err := NewDriver(&camera.Config{URL: srv.URL + "/snapshot.jpg"})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := driver.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	frame, err := driver.Grab(context.Background())
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	if len(frame) != 4 {
		t.Fatalf("unexpected frame size %d", len(frame))
	}
}

func TestDriverGrabBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	driver, _ := NewDriver(&camera.Config{URL: srv.URL})
	if _, err := driver.Grab(context.Background()); err == nil {
		t.Fatalf("expected error for non-200 snapshot")
	}
}

func TestNewDriverValidatesURL(t *testing.T) {
	if _, err := NewDriver(&camera.Config{URL: "not a url"}); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
