package detect

import (
	"testing"
)

func TestPostprocess_ConfidenceThreshold(t *testing.T) {
	cfg := DefaultConfig()

	raw := []RawDetection{
		{X1: 10, Y1: 10, X2: 50, Y2: 50, Confidence: 0.49, ClassID: 0},
		{X1: 10, Y1: 10, X2: 50, Y2: 50, Confidence: 0.5, ClassID: 0},
		{X1: 10, Y1: 10, X2: 50, Y2: 50, Confidence: 0.51, ClassID: 0},
	}

	got := Postprocess(raw, cfg)
	if len(got) != 2 {
		t.Fatalf("kept %d detections, want 2", len(got))
	}
	// The threshold value itself is kept
	if got[0].Confidence != 0.5 {
		t.Errorf("first kept confidence = %f, want 0.5", got[0].Confidence)
	}
}

func TestPostprocess_ClassRange(t *testing.T) {
	cfg := DefaultConfig()

	raw := []RawDetection{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassID: -1},
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassID: 0},
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassID: 79},
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9, ClassID: 80},
	}

	got := Postprocess(raw, cfg)
	if len(got) != 2 {
		t.Fatalf("kept %d detections, want 2", len(got))
	}
	if got[0].ClassName != "person" {
		t.Errorf("class 0 name = %q, want \"person\"", got[0].ClassName)
	}
	if got[1].ClassName != "toothbrush" {
		t.Errorf("class 79 name = %q, want \"toothbrush\"", got[1].ClassName)
	}
}

func TestPostprocess_DegenerateBoxes(t *testing.T) {
	cfg := DefaultConfig()

	raw := []RawDetection{
		{X1: 50, Y1: 10, X2: 50, Y2: 40, Confidence: 0.9, ClassID: 0}, // zero width
		{X1: 10, Y1: 40, X2: 50, Y2: 40, Confidence: 0.9, ClassID: 0}, // zero height
		{X1: 50, Y1: 10, X2: 10, Y2: 40, Confidence: 0.9, ClassID: 0}, // inverted
		{X1: 10, Y1: 10, X2: 50, Y2: 40, Confidence: 0.9, ClassID: 0},
	}

	got := Postprocess(raw, cfg)
	if len(got) != 1 {
		t.Fatalf("kept %d detections, want 1", len(got))
	}
	if got[0].W != 40 || got[0].H != 30 {
		t.Errorf("box = %fx%f, want 40x30", got[0].W, got[0].H)
	}
}

func TestPostprocess_CornerToTopLeft(t *testing.T) {
	raw := []RawDetection{
		{X1: 100, Y1: 50, X2: 180, Y2: 90, Confidence: 0.87, ClassID: 16},
	}

	got := Postprocess(raw, DefaultConfig())
	if len(got) != 1 {
		t.Fatalf("kept %d detections, want 1", len(got))
	}
	d := got[0]
	if d.X != 100 || d.Y != 50 || d.W != 80 || d.H != 40 {
		t.Errorf("box = (%f,%f,%f,%f), want (100,50,80,40)", d.X, d.Y, d.W, d.H)
	}
	if d.ClassName != "dog" {
		t.Errorf("class name = %q, want \"dog\"", d.ClassName)
	}
}

func TestRescale_PerAxisTruncation(t *testing.T) {
	set := DetectionSet{
		{X: 100, Y: 50, W: 80, H: 40, ClassID: 0, ClassName: "person", Confidence: 0.9},
	}

	got := Rescale(set, 416, 416, 640, 480)
	d := got[0]
	if d.X != 153 || d.Y != 57 || d.W != 123 || d.H != 46 {
		t.Errorf("rescaled box = (%v,%v,%v,%v), want (153,57,123,46)", d.X, d.Y, d.W, d.H)
	}
}

func TestRescale_NoOpForSameSpace(t *testing.T) {
	set := DetectionSet{{X: 1, Y: 2, W: 3, H: 4}}

	got := Rescale(set, 640, 480, 640, 480)
	if got[0] != set[0] {
		t.Errorf("rescale to same space changed detection: %+v", got[0])
	}
}

func TestRescale_DoesNotMutateInput(t *testing.T) {
	set := DetectionSet{{X: 100, Y: 50, W: 80, H: 40}}

	Rescale(set, 416, 416, 640, 480)
	if set[0].X != 100 {
		t.Errorf("input mutated: X = %v, want 100", set[0].X)
	}
}

func TestDetection_Label(t *testing.T) {
	d := Detection{ClassName: "person", Confidence: 0.874}
	if got := d.Label(); got != "person: 0.87" {
		t.Errorf("Label() = %q, want \"person: 0.87\"", got)
	}
}

func TestClassName_OutOfRange(t *testing.T) {
	if got := ClassName(200); got != "unknown" {
		t.Errorf("ClassName(200) = %q, want \"unknown\"", got)
	}
}
