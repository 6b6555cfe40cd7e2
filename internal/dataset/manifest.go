package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/renderloop/internal/yaml"
)

const manifestFileName = "state.yaml"

// Run status values recorded in the manifest.
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusAborted = "aborted"
)

// Manifest is the persistent record of one generation run, rewritten
// atomically after every completed scene. It exists for operators: a glance
// at state.yaml tells how far a long run has progressed and how many scene
// retries it burned.
type Manifest struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`

	RunID    string `yaml:"run_id"`
	Scenario string `yaml:"scenario"`
	Status   string `yaml:"status"`

	SceneCount int `yaml:"scene_count"`
	ViewCount  int `yaml:"view_count"`

	ScenesCompleted int `yaml:"scenes_completed"`
	ImagesWritten   int `yaml:"images_written"`
	// SceneRetries counts budget-consuming retries per scene index. Scenes
	// that succeeded first try are absent.
	SceneRetries map[int]int `yaml:"scene_retries,omitempty"`

	StartedAt time.Time `yaml:"started_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// NewManifest initializes the manifest for a fresh run.
func NewManifest(scenario string, sceneCount, viewCount int) *Manifest {
	now := time.Now().UTC()
	return &Manifest{
		SchemaVersion: yaml.CurrentSchemaVersion,
		FileType:      yaml.FileTypeRunManifest,
		RunID:         uuid.NewString(),
		Scenario:      scenario,
		Status:        RunStatusRunning,
		SceneCount:    sceneCount,
		ViewCount:     viewCount,
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

// RecordRetry notes one budget-consuming retry of a scene.
func (m *Manifest) RecordRetry(sceneIndex int) {
	if m.SceneRetries == nil {
		m.SceneRetries = make(map[int]int)
	}
	m.SceneRetries[sceneIndex]++
}

// Save writes the manifest into the dataset directory, atomically.
func (m *Manifest) Save(d DirInfo) error {
	m.UpdatedAt = time.Now().UTC()
	path := filepath.Join(d.BasePath, manifestFileName)
	if err := yaml.AtomicWrite(path, m); err != nil {
		return fmt.Errorf("save run manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the manifest from the dataset directory. A corrupted
// manifest is quarantined and restored from its backup before a second
// parse attempt.
func LoadManifest(d DirInfo) (*Manifest, error) {
	path := filepath.Join(d.BasePath, manifestFileName)

	m, err := readManifest(path)
	if err == nil {
		return m, nil
	}
	if os.IsNotExist(err) {
		return nil, err
	}

	if recErr := yaml.RecoverCorruptedFile(d.BasePath, path); recErr != nil {
		return nil, fmt.Errorf("manifest corrupt, recovery failed: %w", recErr)
	}
	return readManifest(path)
}

func readManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.ValidateSchemaHeaderFromBytes(content, yaml.FileTypeRunManifest); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yamlv3.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
