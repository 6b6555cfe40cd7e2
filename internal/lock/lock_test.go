package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestDatasetLock_TryLock(t *testing.T) {
	dl := ForDataset(t.TempDir())
	if err := dl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer dl.Unlock()
}

func TestDatasetLock_WritesPID(t *testing.T) {
	dir := t.TempDir()
	dl := ForDataset(dir)
	if err := dl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer dl.Unlock()

	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := fmt.Sprintf("%d\n", os.Getpid())
	if string(content) != want {
		t.Errorf("lock file content: got %q, want %q", content, want)
	}
}

func TestDatasetLock_SecondRunRejected(t *testing.T) {
	dir := t.TempDir()

	dl1 := ForDataset(dir)
	if err := dl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer dl1.Unlock()

	dl2 := ForDataset(dir)
	if err := dl2.TryLock(); err == nil {
		dl2.Unlock()
		t.Fatal("expected second TryLock to fail")
	}
}

func TestDatasetLock_UnlockAllowsRelock(t *testing.T) {
	dir := t.TempDir()

	dl1 := ForDataset(dir)
	if err := dl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if err := dl1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	dl2 := ForDataset(dir)
	if err := dl2.TryLock(); err != nil {
		t.Fatalf("re-lock after unlock failed: %v", err)
	}
	dl2.Unlock()
}

func TestDatasetLock_DoubleUnlockSafe(t *testing.T) {
	dl := ForDataset(t.TempDir())
	dl.TryLock()
	dl.Unlock()
	if err := dl.Unlock(); err != nil {
		t.Fatalf("double unlock should be safe, got: %v", err)
	}
}
