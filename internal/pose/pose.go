// Package pose defines the frame and landmark types shared by every stage of
// the coaching pipeline. A Frame is the unit of work: one detector
// callback produces one frame, and the frame is immutable once built.
package pose

// LandmarkCount is the fixed number of landmarks per frame. The upstream
// detector emits exactly this many points per callback, positionally indexed
// by body-part role.
const LandmarkCount = 33

// Landmark role indices within a PoseFrame. These follow the detector's
// positional convention and must not be reordered.
const (
	Nose           = 0
	LeftEar        = 7
	RightEar       = 8
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftFootIndex  = 31
	RightFootIndex = 32
)

// Landmark is one tracked body keypoint. X and Y are normalized image-space
// coordinates, Z is a relative depth proxy (not a metric distance), and
// Visibility is the detector's confidence in [0, 1] that the point is
// correctly located.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is one detector emission: an ordered, fixed-size sequence of
// landmarks plus the wall-clock nanos at which it was received. Frames are
// value objects; pipeline stages never mutate a frame after construction.
type Frame struct {
	Landmarks      [LandmarkCount]Landmark
	RecvdUnixNanos int64
}

// At returns the landmark at index i and whether its visibility clears the
// given threshold. Out-of-range indices report not-present.
func (f *Frame) At(i int, minVisibility float64) (Landmark, bool) {
	if i < 0 || i >= LandmarkCount {
		return Landmark{}, false
	}
	lm := f.Landmarks[i]
	return lm, lm.Visibility >= minVisibility
}

// Connection is one bone of the drawable skeleton, joining two landmark
// indices.
type Connection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SkeletonConnections is the connection topology handed to the rendering
// surface alongside the landmark points. Order matches drawing order.
var SkeletonConnections = []Connection{
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftHip, RightHip},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{LeftAnkle, LeftFootIndex},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
	{RightAnkle, RightFootIndex},
}

// Skeleton is the render payload supplied to the drawing surface: the frame's
// points, the connection topology, and a color derived from overall
// visibility. The core only produces this data; it does not draw.
type Skeleton struct {
	Points      [LandmarkCount]Landmark `json:"points"`
	Connections []Connection            `json:"connections"`
	Color       string                  `json:"color"`
}

// BuildSkeleton assembles the render payload for a frame. The color encodes
// gate status: green when the gate passed, amber otherwise.
func BuildSkeleton(f *Frame, visible bool) Skeleton {
	color := "#ffb000"
	if visible {
		color = "#00c853"
	}
	return Skeleton{
		Points:      f.Landmarks,
		Connections: SkeletonConnections,
		Color:       color,
	}
}
