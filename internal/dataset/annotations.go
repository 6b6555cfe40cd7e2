package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/msageha/renderloop/internal/model"
	"github.com/msageha/renderloop/internal/render"
	"github.com/msageha/renderloop/internal/scene"
)

// WriteAnnotations stores the per-view annotation record under both camera
// conventions. The OpenGL file carries the poses as given; the OpenCV file
// carries the same records with every pose converted.
func WriteAnnotations(d DirInfo, baseFilename string, records []model.ObjectAnnotation) error {
	if err := writeAnnotationFile(d.Annotations.OpenGL, baseFilename, records); err != nil {
		return err
	}

	converted := make([]model.ObjectAnnotation, len(records))
	for i, rec := range records {
		rec.Pose = rec.Pose.ToOpenCV()
		rec.CameraPose = rec.CameraPose.ToOpenCV()
		converted[i] = rec
	}
	return writeAnnotationFile(d.Annotations.OpenCV, baseFilename, converted)
}

func writeAnnotationFile(dir, baseFilename string, records []model.ObjectAnnotation) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode annotations %s: %w", baseFilename, err)
	}
	path := filepath.Join(dir, baseFilename+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	return nil
}

// Annotator decorates a postprocessor with annotation output: after each
// successful postprocess it records every target object's pose and
// visibility for the view, under both camera conventions.
type Annotator struct {
	Dirs   DirInfo
	Handle *scene.Handle
	Oracle scene.VisibilityOracle
	Next   render.Postprocessor
}

func (a *Annotator) Postprocess(ctx context.Context, job model.Job) error {
	if err := a.Next.Postprocess(ctx, job); err != nil {
		return err
	}

	visible := map[string]bool{}
	if a.Oracle != nil {
		perObject, err := a.Oracle.TestVisibility(ctx, a.Handle, job.CameraPose)
		if err != nil {
			return fmt.Errorf("annotate %s: %w", job.BaseFilename, err)
		}
		visible = perObject
	}

	records := make([]model.ObjectAnnotation, 0, len(a.Handle.Objects))
	for _, obj := range a.Handle.Objects {
		records = append(records, model.ObjectAnnotation{
			ObjectClassName: obj.Ref.ClassName,
			ObjectClassID:   obj.Ref.ClassID,
			ObjectName:      obj.Ref.Name,
			ObjectID:        obj.Ref.ID,
			MaskName:        obj.Ref.MaskName,
			FileName:        job.BaseFilename + ".png",
			Visible:         a.Oracle == nil || visible[obj.Ref.Name],
			Pose:            obj.Pose,
			CameraPose:      job.CameraPose,
		})
	}
	return WriteAnnotations(a.Dirs, job.BaseFilename, records)
}

// DumpConfig writes the fully resolved run configuration next to the images
// so a dataset always documents how it was produced.
func DumpConfig(d DirInfo, text string) error {
	path := filepath.Join(d.BasePath, "Dataset.cfg")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
