package yaml

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateSchemaHeader_Valid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")

	content := []byte("schema_version: 1\nfile_type: run_manifest\nrun_id: abc\n")
	os.WriteFile(path, content, 0644)

	if err := ValidateSchemaHeader(path, FileTypeRunManifest); err != nil {
		t.Errorf("expected valid, got error: %v", err)
	}
}

func TestValidateSchemaHeaderFromBytes_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing_version", "file_type: run_manifest\n"},
		{"future_version", "schema_version: 99\nfile_type: run_manifest\n"},
		{"missing_file_type", "schema_version: 1\n"},
		{"unknown_file_type", "schema_version: 1\nfile_type: queue_command\n"},
		{"not_yaml", ": [broken\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateSchemaHeaderFromBytes([]byte(tc.content), FileTypeRunManifest); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidateSchemaHeader_FileTypeMismatch(t *testing.T) {
	content := []byte("schema_version: 1\nfile_type: run_manifest\n")
	if err := ValidateSchemaHeaderFromBytes(content, "something_else"); err == nil {
		t.Error("expected mismatch error")
	}
}

func TestValidateSchemaHeader_MissingFile(t *testing.T) {
	if err := ValidateSchemaHeader(filepath.Join(t.TempDir(), "absent.yaml"), ""); err == nil {
		t.Error("expected error for missing file")
	}
}
