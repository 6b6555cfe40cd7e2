package status

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/msageha/renderloop/internal/dataset"
)

func TestCollect_NoManifest(t *testing.T) {
	status, err := Collect(t.TempDir())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if status.Running {
		t.Error("expected not running")
	}
	if status.RunID != "" {
		t.Errorf("expected empty run id, got %q", status.RunID)
	}
}

func TestCollect_ReadsManifest(t *testing.T) {
	dir := t.TempDir()
	d := dataset.BuildDirInfo(dir)
	if _, err := d.CreateStructure(); err != nil {
		t.Fatalf("CreateStructure failed: %v", err)
	}

	m := dataset.NewManifest("dropzone", 10, 4)
	m.ScenesCompleted = 3
	m.ImagesWritten = 12
	m.RecordRetry(1)
	m.RecordRetry(2)
	if err := m.Save(d); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	status, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if status.Scenario != "dropzone" {
		t.Errorf("scenario: got %q", status.Scenario)
	}
	if status.ScenesCompleted != 3 || status.SceneCount != 10 {
		t.Errorf("progress: got %d/%d", status.ScenesCompleted, status.SceneCount)
	}
	if status.TotalRetries != 2 {
		t.Errorf("retries: got %d", status.TotalRetries)
	}
	if status.Running {
		t.Error("expected not running without a lock holder")
	}
}

func TestCollect_DetectsLiveLockHolder(t *testing.T) {
	dir := t.TempDir()
	content := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(filepath.Join(dir, ".renderloop.lock"), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	status, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !status.Running {
		t.Error("expected running")
	}
	if status.PID != os.Getpid() {
		t.Errorf("pid: got %d", status.PID)
	}
}

func TestCollect_IgnoresStaleLock(t *testing.T) {
	dir := t.TempDir()
	// PID from far beyond pid_max.
	if err := os.WriteFile(filepath.Join(dir, ".renderloop.lock"), []byte("99999999\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	status, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if status.Running {
		t.Error("expected stale lock to report not running")
	}
}
