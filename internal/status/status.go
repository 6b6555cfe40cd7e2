// Package status inspects a dataset directory and reports how its
// generation run is doing, from the run manifest and the dataset lock.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/msageha/renderloop/internal/dataset"
	"github.com/msageha/renderloop/internal/lock"
)

type RunStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Status  string `json:"status,omitempty"`

	RunID    string `json:"run_id,omitempty"`
	Scenario string `json:"scenario,omitempty"`

	ScenesCompleted int `json:"scenes_completed"`
	SceneCount      int `json:"scene_count"`
	ImagesWritten   int `json:"images_written"`
	TotalRetries    int `json:"total_retries"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Run prints the status of the dataset at basePath.
func Run(basePath string, jsonOutput bool) error {
	status, err := Collect(basePath)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	printStatus(status)
	return nil
}

// Collect gathers the run status without printing it.
func Collect(basePath string) (RunStatus, error) {
	dirs := dataset.BuildDirInfo(basePath)
	status := RunStatus{}

	if pid, ok := lockHolder(dirs.BasePath); ok {
		status.Running = true
		status.PID = pid
	}

	manifest, err := dataset.LoadManifest(dirs)
	if err != nil {
		if os.IsNotExist(err) {
			// No manifest yet: either never generated or a pre-manifest
			// dataset. Report what we know.
			return status, nil
		}
		return status, fmt.Errorf("read run manifest: %w", err)
	}

	status.Status = manifest.Status
	status.RunID = manifest.RunID
	status.Scenario = manifest.Scenario
	status.ScenesCompleted = manifest.ScenesCompleted
	status.SceneCount = manifest.SceneCount
	status.ImagesWritten = manifest.ImagesWritten
	status.UpdatedAt = manifest.UpdatedAt
	for _, n := range manifest.SceneRetries {
		status.TotalRetries += n
	}
	return status, nil
}

// lockHolder reads the PID from the dataset lock file and checks the process
// is still alive. A stale lock file from a crashed run reports not running.
func lockHolder(basePath string) (int, bool) {
	content, err := os.ReadFile(filepath.Join(basePath, lock.FileName))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return 0, false
	}
	return pid, true
}

func printStatus(s RunStatus) {
	if s.Running {
		fmt.Printf("run:       active (pid %d)\n", s.PID)
	} else {
		fmt.Println("run:       not running")
	}
	if s.RunID == "" {
		fmt.Println("manifest:  none")
		return
	}
	fmt.Printf("status:    %s\n", s.Status)
	fmt.Printf("scenario:  %s\n", s.Scenario)
	fmt.Printf("progress:  %d/%d scenes, %d images\n", s.ScenesCompleted, s.SceneCount, s.ImagesWritten)
	if s.TotalRetries > 0 {
		fmt.Printf("retries:   %d\n", s.TotalRetries)
	}
	fmt.Printf("updated:   %s\n", s.UpdatedAt.Format(time.RFC3339))
}
