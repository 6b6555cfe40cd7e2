// Package dataset owns the on-disk shape of a generated dataset: the
// directory tree, the per-view annotation files, the configuration dump, and
// the run manifest that records progress across scenes.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirInfo holds every directory a run writes into. All paths are absolute
// once built; environment variables and ~ in the base path are expanded
// before any path is derived from it.
type DirInfo struct {
	BasePath string

	Images struct {
		BasePath string
		RGB      string
		Depth    string
		Mask     string
		Backdrop string
		Range    string
	}
	Annotations struct {
		BasePath string
		OpenCV   string
		OpenGL   string
	}
}

// BuildDirInfo derives the full directory layout from the dataset base path.
func BuildDirInfo(basePath string) DirInfo {
	var d DirInfo
	d.BasePath = ExpandPath(basePath)

	d.Images.BasePath = filepath.Join(d.BasePath, "Images")
	d.Images.RGB = filepath.Join(d.Images.BasePath, "rgb")
	d.Images.Depth = filepath.Join(d.Images.BasePath, "depth")
	d.Images.Mask = filepath.Join(d.Images.BasePath, "mask")
	d.Images.Backdrop = filepath.Join(d.Images.BasePath, "backdrop")
	d.Images.Range = filepath.Join(d.Images.BasePath, "range")

	d.Annotations.BasePath = filepath.Join(d.BasePath, "Annotations")
	d.Annotations.OpenCV = filepath.Join(d.Annotations.BasePath, "OpenCV")
	d.Annotations.OpenGL = filepath.Join(d.Annotations.BasePath, "OpenGL")

	return d
}

// all returns every leaf directory of the layout.
func (d DirInfo) all() []string {
	return []string{
		d.Images.RGB,
		d.Images.Depth,
		d.Images.Mask,
		d.Images.Backdrop,
		d.Images.Range,
		d.Annotations.OpenCV,
		d.Annotations.OpenGL,
	}
}

// CreateStructure creates the full directory tree. It reports whether the
// base path already existed, so callers can warn that a previous run may be
// overwritten.
func (d DirInfo) CreateStructure() (existed bool, err error) {
	if _, statErr := os.Stat(d.BasePath); statErr == nil {
		existed = true
	}
	for _, dir := range d.all() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return existed, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return existed, nil
}

// ExpandPath expands environment variables and a leading ~ in path.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return os.ExpandEnv(path)
}
