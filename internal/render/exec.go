package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/renderloop/internal/model"
)

const (
	defaultRenderTimeout = 10 * time.Minute
	artifactScanInterval = 500 * time.Millisecond
)

// ExecBackend drives an external renderer binary, one invocation per view.
// The job is passed through the environment so arbitrary engines can be
// wrapped without argument templating:
//
//	RENDERLOOP_SCENE          scene index
//	RENDERLOOP_VIEW           view index
//	RENDERLOOP_BASE_FILENAME  artifact stem, e.g. s02_v1
//	RENDERLOOP_CAMERA         camera pose as JSON {"q":[w,x,y,z],"t":[x,y,z]}
//	RENDERLOOP_OUTPUT_DIR     directory the engine must write into
//
// Render returns once the process has exited successfully AND the expected
// artifact exists. Some engines fork and exit before their writer thread has
// flushed, so the artifact is awaited with a filesystem watcher backed by a
// periodic stat fallback.
type ExecBackend struct {
	Command     string
	Args        []string
	OutputDir   string
	ArtifactExt string // e.g. ".png"
	Timeout     time.Duration
	Stderr      *os.File
}

func (b *ExecBackend) Render(ctx context.Context, job model.Job) error {
	timeout := b.Timeout
	if timeout == 0 {
		timeout = defaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	camera, err := json.Marshal(job.CameraPose)
	if err != nil {
		return fmt.Errorf("encode camera pose: %w", err)
	}

	cmd := exec.CommandContext(ctx, b.Command, b.Args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("RENDERLOOP_SCENE=%d", job.SceneIndex),
		fmt.Sprintf("RENDERLOOP_VIEW=%d", job.ViewIndex),
		"RENDERLOOP_BASE_FILENAME="+job.BaseFilename,
		"RENDERLOOP_CAMERA="+string(camera),
		"RENDERLOOP_OUTPUT_DIR="+b.OutputDir,
	)
	if b.Stderr != nil {
		cmd.Stderr = b.Stderr
	}

	artifact := filepath.Join(b.OutputDir, job.BaseFilename+b.ArtifactExt)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("render %s: timed out after %v", job.BaseFilename, timeout)
			}
			return fmt.Errorf("render %s: %w", job.BaseFilename, err)
		}
		return nil
	})
	g.Go(func() error {
		return waitForArtifact(gctx, artifact)
	})
	return g.Wait()
}

// waitForArtifact blocks until path exists. Create/Write events on the
// parent directory wake it early; a stat ticker covers engines on
// filesystems where the watch is unreliable.
func waitForArtifact(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	// The file may have appeared between the first stat and the watch.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	ticker := time.NewTicker(artifactScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for artifact %s: %w", path, ctx.Err())
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			if event.Name == path && (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			return fmt.Errorf("fsnotify: %w", err)
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				return nil
			}
		}
	}
}

// ExecPostprocessor runs an external command per view. A non-zero exit is
// reported as a recoverable *PostprocessError; failure to start the command
// at all is fatal.
type ExecPostprocessor struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (p *ExecPostprocessor) Postprocess(ctx context.Context, job model.Job) error {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = defaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Env = append(os.Environ(), "RENDERLOOP_BASE_FILENAME="+job.BaseFilename)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return &PostprocessError{Job: job, Err: err}
		}
		return fmt.Errorf("postprocess %s: %w", job.BaseFilename, err)
	}
	return nil
}
