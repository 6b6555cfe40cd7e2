package model

// BoundingBox collects the box representations computed during
// postprocessing. Corners2D is the image-space axis-aligned box (top-left,
// bottom-right), Corners3D the projected object-oriented box with the
// centroid first, AABB the axis-aligned box in model coordinates, and OOBB
// the object-oriented box in world coordinates.
type BoundingBox struct {
	Corners2D [][]float32 `json:"corners2d"`
	Corners3D [][]float32 `json:"corners3d"`
	AABB      [][]float32 `json:"aabb"`
	OOBB      [][]float32 `json:"oobb"`
}

// ObjectAnnotation is one entry of the per-image annotation record, one per
// target object in the frame. Quaternions are WXYZ throughout.
type ObjectAnnotation struct {
	ObjectClassName string      `json:"object_class_name"`
	ObjectClassID   int         `json:"object_class_id"`
	ObjectName      string      `json:"object_name"`
	ObjectID        int         `json:"object_id"`
	MaskName        string      `json:"mask_name"`
	FileName        string      `json:"file_name"`
	Visible         bool        `json:"visible"`
	Pose            Pose        `json:"pose"`
	BBox            BoundingBox `json:"bbox"`
	CameraPose      Pose        `json:"camera_pose"`
}
