// Package detect provides object detection over pipeline frames: the
// Detector interface, a YOLO implementation backed by OpenCV's DNN module,
// a mock for tests, and the background worker that feeds frames through a
// detector and publishes results.
package detect

import "fmt"

// Detection is a single detected object in pixel coordinates, top-left
// origin. Coordinates refer to whatever image space the detection was last
// scaled to.
type Detection struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// DetectionSet is the result of one detection pass.
type DetectionSet []Detection

// Image is a packed RGB image handed to a detector.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

// Detector analyzes an image and returns the objects found in it.
type Detector interface {
	// Detect returns an empty set when nothing is found.
	Detect(img Image) (DetectionSet, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds detection filtering options.
type Config struct {
	// ConfidenceThreshold is the minimum confidence to keep a detection
	// (0.0-1.0). The threshold itself is kept.
	ConfidenceThreshold float64

	// NumClasses bounds valid class indices. Detections with an index
	// outside [0, NumClasses) are discarded.
	NumClasses int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		NumClasses:          len(cocoNames),
	}
}

// RawDetection is one row of raw model output: corner coordinates in model
// input space plus confidence and class index.
type RawDetection struct {
	X1         float64
	Y1         float64
	X2         float64
	Y2         float64
	Confidence float64
	ClassID    int
}

// Postprocess filters raw model output and converts corner boxes to
// top-left/width/height form. Rows below the confidence threshold, with an
// out-of-range class index, or with a non-positive box extent are dropped.
func Postprocess(raw []RawDetection, cfg Config) DetectionSet {
	out := make(DetectionSet, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < cfg.ConfidenceThreshold {
			continue
		}
		if r.ClassID < 0 || r.ClassID >= cfg.NumClasses {
			continue
		}
		w := r.X2 - r.X1
		h := r.Y2 - r.Y1
		if w <= 0 || h <= 0 {
			continue
		}
		out = append(out, Detection{
			X:          r.X1,
			Y:          r.Y1,
			W:          w,
			H:          h,
			ClassID:    r.ClassID,
			ClassName:  ClassName(r.ClassID),
			Confidence: r.Confidence,
		})
	}
	return out
}

// Rescale maps detections from one image space to another, scaling each
// axis independently. Results are truncated to whole pixels so boxes never
// spill past the frame edge by rounding.
func Rescale(set DetectionSet, fromW, fromH, toW, toH int) DetectionSet {
	if fromW <= 0 || fromH <= 0 || (fromW == toW && fromH == toH) {
		return set
	}
	sx := float64(toW) / float64(fromW)
	sy := float64(toH) / float64(fromH)

	out := make(DetectionSet, len(set))
	for i, d := range set {
		d.X = float64(int(d.X * sx))
		d.Y = float64(int(d.Y * sy))
		d.W = float64(int(d.W * sx))
		d.H = float64(int(d.H * sy))
		out[i] = d
	}
	return out
}

// Label formats a detection for display, e.g. "person: 0.87".
func (d Detection) Label() string {
	return fmt.Sprintf("%s: %.2f", d.ClassName, d.Confidence)
}
