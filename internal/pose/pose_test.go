package pose

import "testing"

func TestFrameAt(t *testing.T) {
	var f Frame
	f.Landmarks[LeftHip] = Landmark{X: 0.4, Y: 0.6, Visibility: 0.8}

	lm, ok := f.At(LeftHip, 0.5)
	if !ok {
		t.Fatal("expected landmark above threshold to be present")
	}
	if lm.X != 0.4 || lm.Y != 0.6 {
		t.Errorf("unexpected landmark returned: %+v", lm)
	}

	if _, ok := f.At(LeftHip, 0.9); ok {
		t.Error("expected landmark below threshold to be absent")
	}

	// Threshold comparison is inclusive.
	if _, ok := f.At(LeftHip, 0.8); !ok {
		t.Error("expected landmark at exactly the threshold to be present")
	}
}

func TestFrameAtOutOfRange(t *testing.T) {
	var f Frame
	if _, ok := f.At(-1, 0); ok {
		t.Error("negative index should report not-present")
	}
	if _, ok := f.At(LandmarkCount, 0); ok {
		t.Error("index past the end should report not-present")
	}
}

func TestSkeletonConnectionsWellFormed(t *testing.T) {
	for _, c := range SkeletonConnections {
		if c.From < 0 || c.From >= LandmarkCount || c.To < 0 || c.To >= LandmarkCount {
			t.Errorf("connection %+v references an out-of-range landmark", c)
		}
		if c.From == c.To {
			t.Errorf("connection %+v is degenerate", c)
		}
	}
}

func TestBuildSkeletonColor(t *testing.T) {
	var f Frame
	f.Landmarks[Nose] = Landmark{X: 0.5, Y: 0.1, Visibility: 1}

	sk := BuildSkeleton(&f, true)
	if sk.Color != "#00c853" {
		t.Errorf("visible skeleton color = %q, want green", sk.Color)
	}
	if sk.Points[Nose].X != 0.5 {
		t.Error("skeleton points should carry the frame's landmarks")
	}
	if len(sk.Connections) != len(SkeletonConnections) {
		t.Errorf("skeleton carries %d connections, want %d", len(sk.Connections), len(SkeletonConnections))
	}

	sk = BuildSkeleton(&f, false)
	if sk.Color != "#ffb000" {
		t.Errorf("blocked skeleton color = %q, want amber", sk.Color)
	}
}
