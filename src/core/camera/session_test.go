package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rupiah-scanner/src/core/utils"
)

type fakeDriver struct {
	mu       sync.Mutex
	openErr  error
	grabErr  error
	frame    []byte
	opens    int
	grabs    int
	closed   bool
	openWait chan struct{}
}

func (d *fakeDriver) Open(ctx context.Context) error {
	if d.openWait != nil {
		<-d.openWait
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	return d.openErr
}

func (d *fakeDriver) Grab(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grabs++
	if d.grabErr != nil {
		return nil, d.grabErr
	}
	return d.frame, nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type frameCollector struct {
	frames chan []byte
}

func (c *frameCollector) PreviewFrame(frame []byte) {
	select {
	case c.frames <- frame:
	default:
	}
}

func startAndWait(t *testing.T, s *Session, sink PreviewSink) error {
	t.Helper()
	result := make(chan error, 1)
	s.Start(context.Background(), sink, func(err error) { result <- err })
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("bind callback not invoked")
		return nil
	}
}

func TestSessionStartAndCapture(t *testing.T) {
	driver := &fakeDriver{frame: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
	s := NewSession(driver, &Config{}, utils.NewConsoleLogger("error"))

	if err := startAndWait(t, s, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.Ready() {
		t.Fatalf("expected session to be bound")
	}

	dest := NewCapturePath(t.TempDir())
	path, err := s.Capture(context.Background(), dest)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("unexpected capture size %d", len(data))
	}
}

func TestSessionCaptureBeforeBind(t *testing.T) {
	s := NewSession(&fakeDriver{}, &Config{}, utils.NewConsoleLogger("error"))
	if _, err := s.Capture(context.Background(), filepath.Join(t.TempDir(), "x.jpg")); !errors.Is(err, ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestSessionBindFailure(t *testing.T) {
	driver := &fakeDriver{openErr: errors.New("no such device")}
	s := NewSession(driver, &Config{}, utils.NewConsoleLogger("error"))

	err := startAndWait(t, s, nil)
	if !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed, got %v", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %s, want failed", s.State())
	}
}

func TestSessionCaptureFailure(t *testing.T) {
	driver := &fakeDriver{grabErr: errors.New("sensor timeout")}
	s := NewSession(driver, &Config{}, utils.NewConsoleLogger("error"))
	if err := startAndWait(t, s, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := s.Capture(context.Background(), filepath.Join(t.TempDir(), "x.jpg"))
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
}

func TestSessionRestartIsIdempotent(t *testing.T) {
	driver := &fakeDriver{frame: []byte{0xFF, 0xD8}}
	s := NewSession(driver, &Config{PreviewInterval: 5 * time.Millisecond}, utils.NewConsoleLogger("error"))
	sink := &frameCollector{frames: make(chan []byte, 1)}

	if err := startAndWait(t, s, sink); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := startAndWait(t, s, sink); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !s.Ready() {
		t.Fatalf("expected session to be bound after restart")
	}

	select {
	case <-sink.frames:
	case <-time.After(time.Second):
		t.Fatalf("expected preview frames")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Ready() {
		t.Fatalf("expected session to be unbound after stop")
	}
	if !driver.closed {
		t.Fatalf("expected driver to be closed")
	}
}

func TestSessionStopDuringBind(t *testing.T) {
	driver := &fakeDriver{openWait: make(chan struct{})}
	s := NewSession(driver, &Config{}, utils.NewConsoleLogger("error"))

	result := make(chan error, 1)
	s.Start(context.Background(), nil, func(err error) { result <- err })
	s.unbindAll()
	close(driver.openWait)

	if err := <-result; !errors.Is(err, ErrBindFailed) {
		t.Fatalf("expected superseded bind to fail, got %v", err)
	}
	if s.Ready() {
		t.Fatalf("superseded bind must not mark the session bound")
	}
}

func TestNewCapturePathUnique(t *testing.T) {
	dir := t.TempDir()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p := NewCapturePath(dir)
		if seen[p] {
			t.Fatalf("duplicate capture path %s", p)
		}
		seen[p] = true
		if filepath.Ext(p) != ".jpg" {
			t.Fatalf("unexpected extension in %s", p)
		}
	}
}
