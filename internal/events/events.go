// Package events provides an append-only JSONL event log for generation
// runs. The run manifest answers "where is the run now"; the event log
// answers "what happened along the way" and survives across runs of the same
// dataset directory.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize caps the live log at 100MB before rotation.
	DefaultMaxLogSize = 100 * 1024 * 1024
	logFileExtension  = ".jsonl"
	archiveDir        = "archive"
)

type Type string

const (
	TypeRunStarted     Type = "run_started"
	TypeSceneRetried   Type = "scene_retried"
	TypeSceneCompleted Type = "scene_completed"
	TypeRunDone        Type = "run_done"
	TypeRunAborted     Type = "run_aborted"
)

// Entry is one line of the event log.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Type       Type           `json:"event_type"`
	RunID      string         `json:"run_id,omitempty"`
	SceneIndex int            `json:"scene_index"`
	Details    map[string]any `json:"details,omitempty"`
}

// Log is an append-only JSONL writer with size-based rotation. Full logs are
// moved into an archive/ directory next to the live file.
type Log struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	path        string
	runID       string
	rotations   int
}

// Open creates or appends to the event log at path. maxSize <= 0 selects the
// default cap.
func Open(path, runID string, maxSize int64) (*Log, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	l := &Log{path: path, runID: runID, maxSize: maxSize}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) openLogFile() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat event log: %w", err)
	}
	l.file = file
	l.currentSize = stat.Size()
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// RunStarted records the beginning of a generation run.
func (l *Log) RunStarted(sceneCount, viewCount int) error {
	return l.write(Entry{Type: TypeRunStarted, SceneIndex: -1, Details: map[string]any{
		"scene_count": sceneCount,
		"view_count":  viewCount,
	}})
}

// SceneRetried records one budget-consuming retry of a scene.
func (l *Log) SceneRetried(sceneIndex int) error {
	return l.write(Entry{Type: TypeSceneRetried, SceneIndex: sceneIndex})
}

// SceneCompleted records a finished scene and how many images it produced.
func (l *Log) SceneCompleted(sceneIndex, images int) error {
	return l.write(Entry{Type: TypeSceneCompleted, SceneIndex: sceneIndex, Details: map[string]any{
		"images": images,
	}})
}

// RunFinished records the terminal outcome of the run.
func (l *Log) RunFinished(aborted bool, reason string) error {
	entry := Entry{Type: TypeRunDone, SceneIndex: -1}
	if aborted {
		entry.Type = TypeRunAborted
		entry.Details = map[string]any{"reason": reason}
	}
	return l.write(entry)
}

func (l *Log) write(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = time.Now().UTC()
	entry.RunID = l.runID

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate event log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

func (l *Log) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}

	dir := filepath.Join(filepath.Dir(l.path), archiveDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	l.rotations++
	base := filepath.Base(l.path)
	stem := base[:len(base)-len(logFileExtension)]
	archiveName := fmt.Sprintf("%s.%s.%d%s", stem, time.Now().Format("20060102_150405"), l.rotations, logFileExtension)
	if err := os.Rename(l.path, filepath.Join(dir, archiveName)); err != nil {
		return fmt.Errorf("archive log file: %w", err)
	}

	return l.openLogFile()
}
