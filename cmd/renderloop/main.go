package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cogentcore.org/core/math32"

	"github.com/msageha/renderloop/internal/config"
	"github.com/msageha/renderloop/internal/controller"
	"github.com/msageha/renderloop/internal/dataset"
	"github.com/msageha/renderloop/internal/events"
	"github.com/msageha/renderloop/internal/lock"
	"github.com/msageha/renderloop/internal/render"
	"github.com/msageha/renderloop/internal/scene"
	"github.com/msageha/renderloop/internal/status"
	"github.com/msageha/renderloop/internal/trajectory"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "render":
		runRender(os.Args[2:])
	case "dump-config":
		runDumpConfig(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		fmt.Printf("renderloop %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// declareConfig builds the full configuration schema with defaults. Every
// key here can be set in the config file or overridden with a --dotted.key
// flag.
func declareConfig() *config.Tree {
	cfg := config.New()

	cfg.AddParam("dataset.output_path", "$PWD/dataset", "base directory for generated output")
	cfg.AddParam("dataset.scene_count", 1, "number of randomized scenes")
	cfg.AddParam("dataset.view_count", 1, "number of views rendered per scene")
	cfg.AddParam("dataset.max_retry", controller.DefaultMaxRetry, "recoverable failures allowed per scene")
	cfg.AddParam("dataset.max_scene_retries", controller.DefaultMaxSceneRetries, "re-randomizations allowed when the visibility gate rejects a scene")
	cfg.AddParam("dataset.seed", 0, "random seed, 0 picks a time-based seed")
	cfg.AddParam("dataset.log_level", "info", "debug, info, warn, or error")

	cfg.AddParam("scenario_setup.scenario", "static", "registered scenario name")
	cfg.AddParam("scenario_setup.target_objects", []string{}, "object specs as ClassName:count")
	cfg.AddParam("scenario_setup.require_all", false, "visibility gate requires every object visible")
	cfg.AddParam("scenario_setup.dropzone.drop_min", []float64{-0.5, -0.5, 0}, "lower corner of the drop region")
	cfg.AddParam("scenario_setup.dropzone.drop_max", []float64{0.5, 0.5, 0.3}, "upper corner of the drop region")
	cfg.AddParam("scenario_setup.dropzone.fov", 60.0, "horizontal field of view in degrees for the frustum oracle")
	cfg.AddParam("scenario_setup.dropzone.aspect", 4.0/3.0, "frame aspect ratio for the frustum oracle")

	cfg.AddParam("multiview_setup.mode", "circle", "trajectory mode")
	cfg.AddMaybeList("multiview_setup.cameras", []string{"Camera"}, "camera group names")
	cfg.AddParam("multiview_setup.allow_occlusions", true, "skip the per-scene visibility gate")
	cfg.AddParam("multiview_setup.look_at", []float64{0, 0, 0}, "point every camera aims at")

	cfg.AddParam("multiview_setup.circle.radius", 1.0, "")
	cfg.AddParam("multiview_setup.circle.center", []float64{0, 0, 0}, "")
	cfg.AddParam("multiview_setup.wave.radius", 1.0, "")
	cfg.AddParam("multiview_setup.wave.frequency", 1.0, "")
	cfg.AddParam("multiview_setup.wave.amplitude", 1.0, "")
	cfg.AddParam("multiview_setup.wave.center", []float64{0, 0, 0}, "")
	cfg.AddParam("multiview_setup.bezier.start", 0.0, "")
	cfg.AddParam("multiview_setup.bezier.stop", 1.0, "")
	cfg.AddParam("multiview_setup.bezier.p0", []float64{0, 0, 0}, "")
	cfg.AddParam("multiview_setup.bezier.p1", []float64{0, 0, 0}, "")
	cfg.AddParam("multiview_setup.bezier.p2", []float64{0, 0, 0}, "")
	cfg.AddParam("multiview_setup.piecewise_linear.control_points", []float64{0, 0, 0}, "flat x,y,z triples")
	cfg.AddMaybeList("multiview_setup.viewsphere.scale", []float64{1, 1, 1}, "")
	cfg.AddMaybeList("multiview_setup.viewsphere.center", []float64{0, 0, 0}, "")
	cfg.AddParam("multiview_setup.random.scale", 1.0, "")
	cfg.AddParam("multiview_setup.random.base", []float64{0, 0, 0}, "")

	cfg.AddParam("render_setup.backend", "null", "null or exec")
	cfg.AddParam("render_setup.command", "", "renderer command for the exec backend")
	cfg.AddParam("render_setup.args", []string{}, "renderer arguments")
	cfg.AddParam("render_setup.timeout_s", 600, "per-view render timeout in seconds")
	cfg.AddParam("render_setup.artifact_ext", ".png", "extension of the artifact awaited per view")

	cfg.AddParam("postprocess.backend", "null", "null or exec")
	cfg.AddParam("postprocess.command", "", "postprocessor command for the exec backend")
	cfg.AddParam("postprocess.args", []string{}, "postprocessor arguments")
	cfg.AddParam("postprocess.timeout_s", 600, "per-view postprocess timeout in seconds")
	cfg.AddParam("postprocess.annotate", true, "write per-view annotation records")

	return cfg
}

// loadConfig declares the schema, applies the file named by --config (if
// any), then overlays the remaining flags.
func loadConfig(args []string) (*config.Tree, error) {
	cfg := declareConfig()

	var configPath string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}

	if configPath != "" {
		if err := cfg.ParseFile(dataset.ExpandPath(configPath)); err != nil {
			return nil, err
		}
	}
	if err := cfg.ParseArgs(rest); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDumpConfig(args []string) {
	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(cfg.ToText())
}

func runStatus(args []string) {
	jsonOutput := false
	output := "."
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		case "--output":
			if i+1 < len(args) {
				output = args[i+1]
				i++
			}
		}
	}
	if err := status.Run(output, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runRender(args []string) {
	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := log.New(os.Stderr, "", 0)

	dirs := dataset.BuildDirInfo(cfg.String("dataset.output_path"))
	existed, err := dirs.CreateStructure()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create dataset directories: %v\n", err)
		os.Exit(1)
	}
	if existed {
		logger.Printf("WW: output path %s already exists, artifacts may be overwritten", dirs.BasePath)
	}

	dl := lock.ForDataset(dirs.BasePath)
	if err := dl.TryLock(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer dl.Unlock()

	if err := dataset.DumpConfig(dirs, cfg.ToText()); err != nil {
		fmt.Fprintf(os.Stderr, "dump config: %v\n", err)
		os.Exit(1)
	}

	seed := int64(cfg.Int("dataset.seed"))
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	handle, randomizer, oracle, err := buildScenario(cfg, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenario: %v\n", err)
		os.Exit(1)
	}

	cameras, err := buildCameras(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cameras: %v\n", err)
		os.Exit(1)
	}

	renderer, post, err := buildBackends(cfg, dirs, handle, oracle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render setup: %v\n", err)
		os.Exit(1)
	}

	sceneCount := cfg.Int("dataset.scene_count")
	viewCount := cfg.Int("dataset.view_count")
	manifest := dataset.NewManifest(cfg.String("scenario_setup.scenario"), sceneCount, viewCount)
	if err := manifest.Save(dirs); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	eventLog, err := events.Open(filepath.Join(dirs.BasePath, "events.jsonl"), manifest.RunID, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open event log: %v\n", err)
		os.Exit(1)
	}
	defer eventLog.Close()
	if err := eventLog.RunStarted(sceneCount, viewCount); err != nil {
		logger.Printf("WW: event log: %v", err)
	}

	ctrl, err := controller.New(controller.Options{
		SceneCount:      sceneCount,
		Cameras:         cameras,
		RequireAll:      cfg.Bool("scenario_setup.require_all"),
		MaxRetry:        cfg.Int("dataset.max_retry"),
		MaxSceneRetries: cfg.Int("dataset.max_scene_retries"),
		Seed:            seed,
		LogLevel:        controller.ParseLogLevel(cfg.String("dataset.log_level")),
		Logger:          logger,
		Progress:        &manifestProgress{manifest: manifest, dirs: dirs, events: eventLog, logger: logger},
	}, handle, randomizer, oracle, renderer, post)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := ctrl.Run(ctx)
	manifest.Status = dataset.RunStatusDone
	reason := ""
	if runErr != nil {
		manifest.Status = dataset.RunStatusAborted
		reason = runErr.Error()
	}
	if err := manifest.Save(dirs); err != nil {
		logger.Printf("WW: save run manifest: %v", err)
	}
	if err := eventLog.RunFinished(runErr != nil, reason); err != nil {
		logger.Printf("WW: event log: %v", err)
	}

	if runErr != nil {
		var abort *controller.FatalAbortError
		if errors.As(runErr, &abort) {
			fmt.Fprintf(os.Stderr, "generation failed: %v\n", abort)
		} else {
			fmt.Fprintf(os.Stderr, "generation failed: %v\n", runErr)
		}
		os.Exit(1)
	}
	logger.Printf("generated %d images across %d scenes into %s", manifest.ImagesWritten, manifest.ScenesCompleted, dirs.BasePath)
}

func buildScenario(cfg *config.Tree, rng *rand.Rand) (*scene.Handle, scene.Randomizer, scene.VisibilityOracle, error) {
	registry := scene.NewRegistry()
	scene.RegisterBuiltins(registry)

	name := cfg.String("scenario_setup.scenario")
	scenarioCfg, _ := cfg.Sub("scenario_setup." + name)
	randomizer, oracle, err := registry.Build(name, scenarioCfg, rng)
	if err != nil {
		return nil, nil, nil, err
	}

	objects, err := scene.BuildObjects(cfg.Strings("scenario_setup.target_objects"))
	if err != nil {
		return nil, nil, nil, err
	}
	return &scene.Handle{Name: name, Objects: objects}, randomizer, oracle, nil
}

func buildCameras(cfg *config.Tree) ([]controller.Camera, error) {
	viewCount := cfg.Int("dataset.view_count")
	allowOcclusions := cfg.Bool("multiview_setup.allow_occlusions")

	multiview, ok := cfg.Sub("multiview_setup")
	if !ok {
		return nil, errors.New("missing multiview_setup section")
	}
	spec, err := trajectory.SpecFromConfig(multiview, viewCount, allowOcclusions)
	if err != nil {
		return nil, err
	}

	lookAt := cfg.Floats("multiview_setup.look_at")
	if len(lookAt) != 3 {
		return nil, fmt.Errorf("multiview_setup.look_at wants 3 components, got %d", len(lookAt))
	}
	target := math32.Vec3(float32(lookAt[0]), float32(lookAt[1]), float32(lookAt[2]))

	names := cfg.Strings("multiview_setup.cameras")
	if len(names) == 0 {
		names = []string{"Camera"}
	}
	cameras := make([]controller.Camera, len(names))
	for i, name := range names {
		cameras[i] = controller.Camera{Name: name, Spec: spec, LookAt: target}
	}
	return cameras, nil
}

func buildBackends(cfg *config.Tree, dirs dataset.DirInfo, handle *scene.Handle, oracle scene.VisibilityOracle) (render.Renderer, render.Postprocessor, error) {
	var renderer render.Renderer
	switch backend := cfg.String("render_setup.backend"); backend {
	case "null":
		renderer = render.NullRenderer{}
	case "exec":
		command := cfg.String("render_setup.command")
		if command == "" {
			return nil, nil, errors.New("render_setup.command required for the exec backend")
		}
		renderer = &render.ExecBackend{
			Command:     command,
			Args:        cfg.Strings("render_setup.args"),
			OutputDir:   dirs.Images.RGB,
			ArtifactExt: cfg.String("render_setup.artifact_ext"),
			Timeout:     time.Duration(cfg.Int("render_setup.timeout_s")) * time.Second,
			Stderr:      os.Stderr,
		}
	default:
		return nil, nil, fmt.Errorf("unknown render backend %q", backend)
	}

	var post render.Postprocessor
	switch backend := cfg.String("postprocess.backend"); backend {
	case "null":
		post = render.NullPostprocessor{}
	case "exec":
		command := cfg.String("postprocess.command")
		if command == "" {
			return nil, nil, errors.New("postprocess.command required for the exec backend")
		}
		post = &render.ExecPostprocessor{
			Command: command,
			Args:    cfg.Strings("postprocess.args"),
			Timeout: time.Duration(cfg.Int("postprocess.timeout_s")) * time.Second,
		}
	default:
		return nil, nil, fmt.Errorf("unknown postprocess backend %q", backend)
	}

	if cfg.Bool("postprocess.annotate") {
		post = &dataset.Annotator{Dirs: dirs, Handle: handle, Oracle: oracle, Next: post}
	}
	return renderer, post, nil
}

// manifestProgress persists the run manifest and appends an event record
// after every scene event so an interrupted run leaves an accurate progress
// trail behind.
type manifestProgress struct {
	manifest *dataset.Manifest
	dirs     dataset.DirInfo
	events   *events.Log
	logger   *log.Logger
}

func (p *manifestProgress) SceneRetried(sceneIndex int) {
	p.manifest.RecordRetry(sceneIndex)
	if err := p.manifest.Save(p.dirs); err != nil {
		p.logger.Printf("WW: save run manifest: %v", err)
	}
	if err := p.events.SceneRetried(sceneIndex); err != nil {
		p.logger.Printf("WW: event log: %v", err)
	}
}

func (p *manifestProgress) SceneCompleted(sceneIndex, images int) {
	p.manifest.ScenesCompleted = sceneIndex + 1
	p.manifest.ImagesWritten += images
	if err := p.manifest.Save(p.dirs); err != nil {
		p.logger.Printf("WW: save run manifest: %v", err)
	}
	if err := p.events.SceneCompleted(sceneIndex, images); err != nil {
		p.logger.Printf("WW: event log: %v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `renderloop %s - synthetic image dataset generator

Usage: renderloop <command> [options]

Commands:
  render [--config file] [--dotted.key value ...]   Run a generation
  dump-config [--config file] [flags]               Print the resolved configuration
  status [--output dir] [--json]                    Report the state of a dataset directory
  version                                           Show version
  help                                              Show this help

Every declared configuration key can be overridden on the command line,
e.g. --dataset.scene_count 10 --multiview_setup.mode viewsphere.
`, version)
}
