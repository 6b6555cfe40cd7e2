// Package controller implements the generation state machine that turns a
// parsed configuration into a bounded sequence of scene/view render jobs.
// It owns retry budgets, phase transitions, and job naming; everything that
// touches the 3D engine or the filesystem is behind the collaborator
// interfaces it is constructed with.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"cogentcore.org/core/math32"

	"github.com/msageha/renderloop/internal/model"
	"github.com/msageha/renderloop/internal/render"
	"github.com/msageha/renderloop/internal/scene"
	"github.com/msageha/renderloop/internal/trajectory"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

const (
	// DefaultMaxRetry bounds recoverable failures (randomizer, postprocess)
	// per scene before the run aborts.
	DefaultMaxRetry = 5
	// DefaultMaxSceneRetries bounds re-randomization when the visibility
	// gate keeps rejecting a scene. The reference behavior was an unbounded
	// loop that stalls forever on an unsatisfiable scenario.
	DefaultMaxSceneRetries = 50
	// DefaultMaxPointRedraws bounds per-point redraws during trajectory
	// derivation for the random mode.
	DefaultMaxPointRedraws = 25
)

// FatalAbortError is the terminal failure of a run: some scene exhausted its
// retry budget, or the visibility gate proved unsatisfiable. Partial output
// for the failing scene is left on disk as-is.
type FatalAbortError struct {
	SceneIndex int
	Attempts   int
	Err        error
}

func (e *FatalAbortError) Error() string {
	return fmt.Sprintf("fatal abort at scene %d after %d attempts: %v", e.SceneIndex, e.Attempts, e.Err)
}

func (e *FatalAbortError) Unwrap() error { return e.Err }

// RetryBudget counts recoverable failures for one scene. It is created fresh
// when a new scene index begins and never carries over.
type RetryBudget struct {
	count int
	max   int
}

// Consume records one failure and reports whether the budget still allows a
// retry.
func (b *RetryBudget) Consume() (ok bool) {
	b.count++
	return b.count <= b.max
}

// Camera is one camera group: a trajectory to walk and a point to aim at.
type Camera struct {
	Name   string
	Spec   trajectory.Spec
	LookAt math32.Vector3
}

// Progress receives scene-granularity notifications, typically backed by the
// run manifest. All methods are called from the single controller goroutine.
type Progress interface {
	SceneRetried(sceneIndex int)
	SceneCompleted(sceneIndex, imagesWritten int)
}

// Options tune the controller. Zero values select the documented defaults.
type Options struct {
	SceneCount int
	Cameras    []Camera

	// RequireAll makes the visibility gate demand every target object
	// visible; otherwise one visible object suffices.
	RequireAll bool

	MaxRetry        int
	MaxSceneRetries int
	MaxPointRedraws int

	Seed     int64
	LogLevel LogLevel
	Logger   *log.Logger
	Progress Progress
}

// Controller drives the randomize, verify, render, postprocess cycle.
// Strictly single-threaded: exactly one job is in flight at any time, and
// the scene handle is exclusively owned for the duration of Run.
type Controller struct {
	opts Options

	handle     *scene.Handle
	randomizer scene.Randomizer
	oracle     scene.VisibilityOracle
	renderer   render.Renderer
	post       render.Postprocessor

	rng    *rand.Rand
	logger *log.Logger
	phase  model.Phase

	// points[i] is the derived camera point sequence for opts.Cameras[i],
	// fixed after trajectory derivation.
	points [][]math32.Vector3
}

func New(opts Options, h *scene.Handle, randomizer scene.Randomizer, oracle scene.VisibilityOracle, renderer render.Renderer, post render.Postprocessor) (*Controller, error) {
	if opts.SceneCount < 0 {
		return nil, fmt.Errorf("controller: scene count %d is negative", opts.SceneCount)
	}
	if len(opts.Cameras) == 0 {
		return nil, errors.New("controller: at least one camera group required")
	}
	for _, cam := range opts.Cameras {
		if cam.Spec.ViewCount < 1 {
			return nil, fmt.Errorf("controller: camera %q has view count %d", cam.Name, cam.Spec.ViewCount)
		}
	}
	if opts.MaxRetry == 0 {
		opts.MaxRetry = DefaultMaxRetry
	}
	if opts.MaxSceneRetries == 0 {
		opts.MaxSceneRetries = DefaultMaxSceneRetries
	}
	if opts.MaxPointRedraws == 0 {
		opts.MaxPointRedraws = DefaultMaxPointRedraws
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Controller{
		opts:       opts,
		handle:     h,
		randomizer: randomizer,
		oracle:     oracle,
		renderer:   renderer,
		post:       post,
		rng:        rand.New(rand.NewSource(seed)),
		logger:     logger,
		phase:      model.PhaseIdle,
	}, nil
}

// Phase reports the controller's current phase.
func (c *Controller) Phase() model.Phase { return c.phase }

// Run executes the full generation. It returns nil on success,
// *FatalAbortError when a retry budget is exhausted, and the underlying
// error for configuration or collaborator failures.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.transition(model.PhaseTrajectoryDerivation); err != nil {
		return err
	}
	if err := c.deriveTrajectories(ctx); err != nil {
		c.phase = model.PhaseFatalAbort
		return err
	}

	if c.opts.SceneCount == 0 {
		c.log(LogLevelInfo, "scene count is zero, nothing to generate")
		return c.transition(model.PhaseDone)
	}

	if err := c.transition(model.PhaseSceneIteration); err != nil {
		return err
	}
	for sceneIndex := 0; sceneIndex < c.opts.SceneCount; sceneIndex++ {
		if err := ctx.Err(); err != nil {
			c.phase = model.PhaseFatalAbort
			return err
		}
		budget := RetryBudget{max: c.opts.MaxRetry}
		if err := c.runScene(ctx, sceneIndex, &budget); err != nil {
			c.phase = model.PhaseFatalAbort
			return err
		}
		c.log(LogLevelInfo, "scene %d/%d complete", sceneIndex+1, c.opts.SceneCount)
	}
	return c.transition(model.PhaseDone)
}

// deriveTrajectories evaluates every camera group's trajectory exactly once.
// When occlusions are not allowed, each derived point is checked against the
// initial object placement; points of a random trajectory are redrawn a
// bounded number of times, anything else fails derivation outright.
func (c *Controller) deriveTrajectories(ctx context.Context) error {
	c.points = make([][]math32.Vector3, len(c.opts.Cameras))
	for i, cam := range c.opts.Cameras {
		points, err := cam.Spec.Points(c.rng)
		if err != nil {
			return fmt.Errorf("camera %q: %w", cam.Name, err)
		}
		if !cam.Spec.AllowOcclusions {
			if err := c.gateDerivedPoints(ctx, cam, points); err != nil {
				return err
			}
		}
		c.points[i] = points
		c.log(LogLevelDebug, "camera %q: derived %d points (mode=%s)", cam.Name, len(points), cam.Spec.Mode)
	}
	return nil
}

func (c *Controller) gateDerivedPoints(ctx context.Context, cam Camera, points []math32.Vector3) error {
	for j := range points {
		redraws := 0
		for {
			visible, err := c.testPoint(ctx, cam, points[j])
			if err != nil {
				return fmt.Errorf("camera %q point %d: %w", cam.Name, j, err)
			}
			if visible {
				break
			}
			if cam.Spec.Mode != trajectory.ModeRandom {
				return &trajectory.DegenerateError{
					Mode:   cam.Spec.Mode,
					Reason: fmt.Sprintf("camera %q point %d fails the visibility constraint and cannot be redrawn", cam.Name, j),
				}
			}
			redraws++
			if redraws > c.opts.MaxPointRedraws {
				return &trajectory.DegenerateError{
					Mode:   cam.Spec.Mode,
					Reason: fmt.Sprintf("camera %q point %d still occluded after %d redraws", cam.Name, j, c.opts.MaxPointRedraws),
				}
			}
			c.log(LogLevelWarn, "camera %q: redrawing occluded point %d (attempt %d)", cam.Name, j, redraws)
			points[j] = trajectory.RandomPoint(cam.Spec.WalkStart, cam.Spec.WalkScale, c.rng)
		}
	}
	return nil
}

func (c *Controller) testPoint(ctx context.Context, cam Camera, point math32.Vector3) (bool, error) {
	pose := model.LookAtPose(point, cam.LookAt)
	perObject, err := c.oracle.TestVisibility(ctx, c.handle, pose)
	if err != nil {
		return false, err
	}
	return scene.Aggregate(perObject, c.opts.RequireAll), nil
}

// runScene produces all views of one scene, consuming the scene's retry
// budget on recoverable failures. The budget is shared between randomizer
// failures and postprocess failures.
func (c *Controller) runScene(ctx context.Context, sceneIndex int, budget *RetryBudget) error {
	visRetries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.randomizer.Randomize(ctx, c.handle); err != nil {
			if !budget.Consume() {
				return &FatalAbortError{SceneIndex: sceneIndex, Attempts: budget.count, Err: fmt.Errorf("randomize: %w", err)}
			}
			c.log(LogLevelWarn, "scene %d: randomize failed, retrying: %v", sceneIndex, err)
			c.retried(sceneIndex)
			continue
		}

		ok, err := c.visibilityGate(ctx)
		if err != nil {
			return fmt.Errorf("scene %d: visibility gate: %w", sceneIndex, err)
		}
		if !ok {
			visRetries++
			if visRetries > c.opts.MaxSceneRetries {
				return &FatalAbortError{
					SceneIndex: sceneIndex,
					Attempts:   visRetries,
					Err:        fmt.Errorf("visibility constraint unsatisfied after %d re-randomizations", c.opts.MaxSceneRetries),
				}
			}
			c.log(LogLevelWarn, "scene %d: visibility rejected, re-randomizing (%d/%d)", sceneIndex, visRetries, c.opts.MaxSceneRetries)
			c.retried(sceneIndex)
			continue
		}

		// View iteration. A recoverable postprocess failure restarts all
		// views of this scene without re-randomizing.
		for {
			images, viewErr := c.runViews(ctx, sceneIndex)
			if viewErr == nil {
				c.completed(sceneIndex, images)
				return nil
			}
			var ppErr *render.PostprocessError
			if !errors.As(viewErr, &ppErr) {
				return viewErr
			}
			if !budget.Consume() {
				return &FatalAbortError{SceneIndex: sceneIndex, Attempts: budget.count, Err: viewErr}
			}
			c.log(LogLevelWarn, "scene %d: postprocess failed (%s), repeating scene (retry %d/%d): %v",
				sceneIndex, ppErr.Job.BaseFilename, budget.count, budget.max, ppErr.Err)
			c.retried(sceneIndex)
		}
	}
}

// visibilityGate checks every derived camera point against the current
// object placement. Cameras that allow occlusions are skipped.
func (c *Controller) visibilityGate(ctx context.Context) (bool, error) {
	for i, cam := range c.opts.Cameras {
		if cam.Spec.AllowOcclusions {
			continue
		}
		for _, point := range c.points[i] {
			visible, err := c.testPoint(ctx, cam, point)
			if err != nil {
				return false, err
			}
			if !visible {
				return false, nil
			}
		}
	}
	return true, nil
}

// runViews dispatches render and postprocess for every camera group and
// every derived point of the scene, in order.
func (c *Controller) runViews(ctx context.Context, sceneIndex int) (images int, err error) {
	if err := c.transition(model.PhaseViewIteration); err != nil {
		return 0, err
	}
	defer func() {
		if tErr := c.transition(model.PhaseSceneIteration); tErr != nil && err == nil {
			err = tErr
		}
	}()

	for i, cam := range c.opts.Cameras {
		for viewIndex, point := range c.points[i] {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return images, ctxErr
			}
			pose := model.LookAtPose(point, cam.LookAt)
			job := model.NewJob(sceneIndex, c.opts.SceneCount, viewIndex, cam.Spec.ViewCount, cam.Name, pose)

			if err := c.renderer.Render(ctx, job); err != nil {
				return images, fmt.Errorf("render %s: %w", job.BaseFilename, err)
			}
			if err := c.post.Postprocess(ctx, job); err != nil {
				return images, err
			}
			images++
			c.log(LogLevelDebug, "view %s done (camera=%s)", job.BaseFilename, cam.Name)
		}
	}
	return images, nil
}

func (c *Controller) transition(next model.Phase) error {
	if err := model.ValidatePhaseTransition(c.phase, next); err != nil {
		return err
	}
	c.phase = next
	return nil
}

func (c *Controller) retried(sceneIndex int) {
	if c.opts.Progress != nil {
		c.opts.Progress.SceneRetried(sceneIndex)
	}
}

func (c *Controller) completed(sceneIndex, images int) {
	if c.opts.Progress != nil {
		c.opts.Progress.SceneCompleted(sceneIndex, images)
	}
}

func (c *Controller) log(level LogLevel, format string, args ...any) {
	if level < c.opts.LogLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("%s %s controller: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
