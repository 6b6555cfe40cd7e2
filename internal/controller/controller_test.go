package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/renderloop/internal/model"
	"github.com/msageha/renderloop/internal/render"
	"github.com/msageha/renderloop/internal/scene"
	"github.com/msageha/renderloop/internal/trajectory"
)

type fakeRenderer struct {
	jobs []model.Job
}

func (r *fakeRenderer) Render(_ context.Context, job model.Job) error {
	r.jobs = append(r.jobs, job)
	return nil
}

type fakePostprocessor struct {
	jobs []model.Job
	// fail decides per call whether to return a recoverable error.
	fail func(call int, job model.Job) bool
}

func (p *fakePostprocessor) Postprocess(_ context.Context, job model.Job) error {
	call := len(p.jobs)
	p.jobs = append(p.jobs, job)
	if p.fail != nil && p.fail(call, job) {
		return &render.PostprocessError{Job: job, Err: errors.New("degenerate bbox")}
	}
	return nil
}

type fakeRandomizer struct {
	calls    int
	failUpTo int
}

func (r *fakeRandomizer) Randomize(_ context.Context, _ *scene.Handle) error {
	r.calls++
	if r.calls <= r.failUpTo {
		return errors.New("physics blew up")
	}
	return nil
}

// scriptedOracle returns its scripted verdicts in call order and defaults to
// visible once the script runs out.
type scriptedOracle struct {
	script []bool
	calls  int
}

func (o *scriptedOracle) TestVisibility(_ context.Context, h *scene.Handle, _ model.Pose) (map[string]bool, error) {
	verdict := true
	if o.calls < len(o.script) {
		verdict = o.script[o.calls]
	}
	o.calls++
	result := make(map[string]bool, len(h.Objects))
	for _, obj := range h.Objects {
		result[obj.Ref.Name] = verdict
	}
	return result, nil
}

func testHandle(t *testing.T) *scene.Handle {
	t.Helper()
	objects, err := scene.BuildObjects([]string{"LetterB:1"})
	require.NoError(t, err)
	return &scene.Handle{Name: "test", Objects: objects}
}

func circleCamera(viewCount int, allowOcclusions bool) Camera {
	return Camera{
		Name: "Camera",
		Spec: trajectory.Spec{
			Mode:            trajectory.ModeCircle,
			ViewCount:       viewCount,
			AllowOcclusions: allowOcclusions,
			Radius:          2,
		},
		LookAt: math32.Vector3{},
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRunProducesAllJobsInOrder(t *testing.T) {
	renderer := &fakeRenderer{}
	post := &fakePostprocessor{}
	c, err := New(Options{
		SceneCount: 3,
		Cameras:    []Camera{circleCamera(2, true)},
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), &fakeRandomizer{}, &scriptedOracle{}, renderer, post)
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, model.PhaseDone, c.Phase())

	require.Len(t, renderer.jobs, 6)
	require.Len(t, post.jobs, 6)
	want := []string{"s0_v0", "s0_v1", "s1_v0", "s1_v1", "s2_v0", "s2_v1"}
	for i, job := range renderer.jobs {
		assert.Equal(t, want[i], job.BaseFilename)
	}
	assert.Equal(t, renderer.jobs, post.jobs)
}

func TestPostprocessRetryRepeatsSceneThenAdvances(t *testing.T) {
	renderer := &fakeRenderer{}
	post := &fakePostprocessor{
		fail: func(call int, job model.Job) bool {
			return job.SceneIndex == 0 && call < 2
		},
	}
	randomizer := &fakeRandomizer{}
	c, err := New(Options{
		SceneCount: 2,
		Cameras:    []Camera{circleCamera(1, true)},
		MaxRetry:   5,
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), randomizer, &scriptedOracle{}, renderer, post)
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	scene0Posts := 0
	for _, job := range post.jobs {
		if job.SceneIndex == 0 {
			scene0Posts++
		}
	}
	assert.Equal(t, 3, scene0Posts)
	assert.Len(t, post.jobs, 4)
	assert.Equal(t, "s1_v0", post.jobs[len(post.jobs)-1].BaseFilename)
	// The retry repeats the views, not the randomization.
	assert.Equal(t, 2, randomizer.calls)
}

func TestExhaustedRetryBudgetAbortsRun(t *testing.T) {
	renderer := &fakeRenderer{}
	post := &fakePostprocessor{
		fail: func(int, model.Job) bool { return true },
	}
	c, err := New(Options{
		SceneCount: 2,
		Cameras:    []Camera{circleCamera(1, true)},
		MaxRetry:   2,
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), &fakeRandomizer{}, &scriptedOracle{}, renderer, post)
	require.NoError(t, err)

	err = c.Run(context.Background())
	var abort *FatalAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 0, abort.SceneIndex)
	assert.Equal(t, 3, abort.Attempts)
	assert.Equal(t, model.PhaseFatalAbort, c.Phase())

	// Initial attempt plus two retries, scene 1 never starts.
	assert.Len(t, post.jobs, 3)
	for _, job := range post.jobs {
		assert.Equal(t, 0, job.SceneIndex)
	}
}

func TestVisibilityGateRerandomizes(t *testing.T) {
	randomizer := &fakeRandomizer{}
	// First call gates the derived point, then two scene rejections.
	oracle := &scriptedOracle{script: []bool{true, false, false}}
	c, err := New(Options{
		SceneCount: 1,
		Cameras:    []Camera{circleCamera(1, false)},
		RequireAll: true,
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), randomizer, oracle, &fakeRenderer{}, &fakePostprocessor{})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 3, randomizer.calls)
}

func TestVisibilityGateIsBounded(t *testing.T) {
	// A scenario that can never satisfy the gate must abort instead of
	// spinning forever.
	// One true lets derivation pass, then the gate never succeeds.
	oracle := &scriptedOracle{script: append([]bool{true}, falses(200)...)}
	c, err := New(Options{
		SceneCount:      1,
		Cameras:         []Camera{circleCamera(1, false)},
		RequireAll:      true,
		MaxSceneRetries: 4,
		Seed:            1,
		Logger:          quietLogger(),
	}, testHandle(t), &fakeRandomizer{}, oracle, &fakeRenderer{}, &fakePostprocessor{})
	require.NoError(t, err)

	err = c.Run(context.Background())
	var abort *FatalAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 5, abort.Attempts)
}

func TestDerivationRejectsOccludedDeterministicPoint(t *testing.T) {
	oracle := &scriptedOracle{script: []bool{false}}
	c, err := New(Options{
		SceneCount: 1,
		Cameras:    []Camera{circleCamera(1, false)},
		RequireAll: true,
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), &fakeRandomizer{}, oracle, &fakeRenderer{}, &fakePostprocessor{})
	require.NoError(t, err)

	err = c.Run(context.Background())
	var degenerate *trajectory.DegenerateError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, model.PhaseFatalAbort, c.Phase())
}

func TestDerivationRedrawsRandomPoints(t *testing.T) {
	oracle := &scriptedOracle{script: []bool{false, false, true}}
	cam := Camera{
		Name: "Camera",
		Spec: trajectory.Spec{
			Mode:            trajectory.ModeRandom,
			ViewCount:       1,
			AllowOcclusions: false,
			WalkScale:       1,
		},
	}
	renderer := &fakeRenderer{}
	c, err := New(Options{
		SceneCount: 1,
		Cameras:    []Camera{cam},
		RequireAll: true,
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), &fakeRandomizer{}, oracle, renderer, &fakePostprocessor{})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, renderer.jobs, 1)
}

func TestRandomizerFailuresConsumeBudget(t *testing.T) {
	randomizer := &fakeRandomizer{failUpTo: 100}
	c, err := New(Options{
		SceneCount: 1,
		Cameras:    []Camera{circleCamera(1, true)},
		MaxRetry:   2,
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), randomizer, &scriptedOracle{}, &fakeRenderer{}, &fakePostprocessor{})
	require.NoError(t, err)

	err = c.Run(context.Background())
	var abort *FatalAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 3, randomizer.calls)
}

func TestZeroScenesFinishesImmediately(t *testing.T) {
	renderer := &fakeRenderer{}
	c, err := New(Options{
		SceneCount: 0,
		Cameras:    []Camera{circleCamera(2, true)},
		Seed:       1,
		Logger:     quietLogger(),
	}, testHandle(t), &fakeRandomizer{}, &scriptedOracle{}, renderer, &fakePostprocessor{})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, model.PhaseDone, c.Phase())
	assert.Empty(t, renderer.jobs)
}

type recordingProgress struct {
	retries   map[int]int
	completed []string
}

func (p *recordingProgress) SceneRetried(sceneIndex int) {
	if p.retries == nil {
		p.retries = make(map[int]int)
	}
	p.retries[sceneIndex]++
}

func (p *recordingProgress) SceneCompleted(sceneIndex, images int) {
	p.completed = append(p.completed, fmt.Sprintf("%d:%d", sceneIndex, images))
}

func TestProgressNotifications(t *testing.T) {
	progress := &recordingProgress{}
	post := &fakePostprocessor{
		fail: func(call int, job model.Job) bool {
			return job.SceneIndex == 0 && call == 0
		},
	}
	c, err := New(Options{
		SceneCount: 2,
		Cameras:    []Camera{circleCamera(2, true)},
		Seed:       1,
		Logger:     quietLogger(),
		Progress:   progress,
	}, testHandle(t), &fakeRandomizer{}, &scriptedOracle{}, &fakeRenderer{}, post)
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, map[int]int{0: 1}, progress.retries)
	assert.Equal(t, []string{"0:2", "1:2"}, progress.completed)
}

func falses(n int) []bool {
	return make([]bool, n)
}
