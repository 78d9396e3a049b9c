// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
	"time"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks() error: %v", err)
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcherReportsOnlyRegisteredFiles(t *testing.T) {
	t.Parallel()

	dir := tempDir(t)
	watched := filepath.Join(dir, "a.ts")
	other := filepath.Join(dir, "b.ts")
	writeFile(t, watched, "export const a = 1")
	writeFile(t, other, "export const b = 1")

	got := make(chan []string, 4)
	w, err := New(Config{
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			got <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	w.Watch(watched)
	w.Watch(watched)
	w.Watch("virtual:routes")

	if diff := w.Watched(); !slices.Equal(diff, []string{watched}) {
		t.Fatalf("Watched() = %v, want [%s]", diff, watched)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	for i := range 3 {
		writeFile(t, watched, fmt.Sprintf("export const a = %d", i+2))
		writeFile(t, other, "export const b = 2")
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case changed := <-got:
		if !slices.Equal(changed, []string{watched}) {
			t.Errorf("OnChange() changed = %v, want [%s]", changed, watched)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnChange() was not called")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run() error: %v", err)
	}
}

func TestWatcherIgnore(t *testing.T) {
	t.Parallel()

	dir := tempDir(t)
	w, err := New(Config{Ignore: []string{"**/generated/**"}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	w.Watch(filepath.Join(dir, "generated", "routes.ts"))
	w.Watch(filepath.Join(dir, ".git", "HEAD"))
	if got := w.Watched(); len(got) != 0 {
		t.Errorf("Watched() = %v, want none", got)
	}
}

func TestWatcherInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Ignore: []string{"[unterminated"}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("New() error = %v, want ErrInvalidPattern", err)
	}
}

func TestWatcherDoubleRun(t *testing.T) {
	t.Parallel()

	w, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	if !isFatalFsnotifyError(fmt.Errorf("add: %w", syscall.ENOSPC)) {
		t.Error("ENOSPC should be fatal")
	}
	if isFatalFsnotifyError(errors.New("transient")) {
		t.Error("plain errors should not be fatal")
	}
}

func TestDefaultIgnoresIsCopy(t *testing.T) {
	t.Parallel()

	got := DefaultIgnores()
	got[0] = "changed"
	if DefaultIgnores()[0] == "changed" {
		t.Error("DefaultIgnores() exposed internal slice")
	}
}
