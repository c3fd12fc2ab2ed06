package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
	}
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)
	d.Trigger(func() { calls.Add(1) })
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("cancelled call ran")
	}
}

type fakeFingerprint struct {
	mu sync.Mutex
	v  string
}

func (f *fakeFingerprint) set(v string) {
	f.mu.Lock()
	f.v = v
	f.mu.Unlock()
}

func (f *fakeFingerprint) Fingerprint(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v, nil
}

func TestStoreNotifiesOnFingerprintChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeFingerprint{v: "1"}
	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- Store(ctx, src, 5*time.Millisecond, func() { changed <- struct{}{} })
	}()

	select {
	case <-changed:
		t.Fatal("baseline read must not notify")
	case <-time.After(30 * time.Millisecond):
	}

	src.set("2")
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("no notification after fingerprint change")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Store returned %v", err)
	}
}

func TestFileNotifiesOnWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "index.json")
	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- File(ctx, path, func() { changed <- struct{}{} }, WithDebounceDuration(10*time.Millisecond))
	}()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after write")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("File returned %v", err)
	}
}

func TestFileIgnoresSiblings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	changed := make(chan struct{}, 4)
	go File(ctx, filepath.Join(dir, "index.json"), func() { changed <- struct{}{} }, WithDebounceDuration(10*time.Millisecond))

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("sibling write triggered a notification")
	case <-time.After(100 * time.Millisecond):
	}
}
