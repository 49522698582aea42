package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// extSelector watches .py files outside skipped directories.
type extSelector struct{ skip string }

func (s extSelector) SkipDir(rel string) bool {
	return s.skip != "" && strings.TrimSuffix(rel, "/") == s.skip
}

func (s extSelector) Match(rel string) bool {
	if s.skip != "" && strings.HasPrefix(rel, s.skip+"/") {
		return false
	}
	return strings.HasSuffix(rel, ".py")
}

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), extSelector{}, 100*time.Millisecond, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func waitFor(t *testing.T, ch <-chan []string, want string, within time.Duration) {
	t.Helper()
	timeout := time.After(within)
	for {
		select {
		case paths := <-ch:
			for _, p := range paths {
				if p == want {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "vendor"), 0o755); err != nil {
		t.Fatal(err)
	}

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(tmpDir, extSelector{skip: "vendor"}, 100*time.Millisecond, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "a.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, "a.py", 2*time.Second)

	// Unselected files and skipped directories stay quiet.
	_ = os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(tmpDir, "vendor", "lib.py"), []byte("x"), 0o644)
	select {
	case paths := <-changedFiles:
		t.Fatalf("unexpected change batch %v", paths)
	case <-time.After(500 * time.Millisecond):
	}

	// New directories are watched recursively.
	subdir := filepath.Join(tmpDir, "pkg")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(subdir, "nested.py"), []byte("y = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, "pkg/nested.py", 2*time.Second)
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(tmpDir, extSelector{}, 100*time.Millisecond, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(tmpDir, "old.py")
	if err := os.WriteFile(oldPath, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(oldPath, filepath.Join(tmpDir, "new.py")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, "new.py", 2*time.Second)
}

func TestWatcher_FlushSortsAndResets(t *testing.T) {
	got := make(chan []string, 1)
	w, err := NewWatcher(t.TempDir(), extSelector{}, time.Hour, func(paths []string) {
		got <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.scheduleChange(filepath.Join(w.Root(), "b.py"))
	w.scheduleChange(filepath.Join(w.Root(), "a.py"))
	w.scheduleChange(filepath.Join(w.Root(), "b.py"))
	w.flushChanges()

	paths := <-got
	if len(paths) != 2 || paths[0] != "a.py" || paths[1] != "b.py" {
		t.Fatalf("unexpected batch %v", paths)
	}
	w.flushChanges()
	select {
	case extra := <-got:
		t.Fatalf("expected no second batch, got %v", extra)
	default:
	}
}
