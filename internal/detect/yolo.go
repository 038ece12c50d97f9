package detect

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const yoloOutputStride = 6 // x1, y1, x2, y2, confidence, class

// YOLODetector runs a YOLO ONNX model with NMS fused into the graph through
// OpenCV's DNN module. Model output rows are [x1 y1 x2 y2 conf class] in
// input-image coordinates.
type YOLODetector struct {
	cfg    Config
	width  int
	height int

	mu  sync.Mutex
	net gocv.Net
}

// NewYOLODetector loads the model at the given path and runs a couple of
// warm-up passes so the first real inference is not an outlier.
func NewYOLODetector(modelPath string, inputWidth, inputHeight int, cfg Config) (*YOLODetector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load ONNX model from %s", modelPath)
	}

	d := &YOLODetector{
		cfg:    cfg,
		width:  inputWidth,
		height: inputHeight,
		net:    net,
	}

	if err := d.warmup(2); err != nil {
		net.Close()
		return nil, fmt.Errorf("model warm-up failed: %w", err)
	}

	return d, nil
}

// warmup feeds blank frames through the network.
func (d *YOLODetector) warmup(passes int) error {
	blank := Image{
		Width:  d.width,
		Height: d.height,
		Pixels: make([]byte, d.width*d.height*3),
	}
	for i := 0; i < passes; i++ {
		if _, err := d.Detect(blank); err != nil {
			return err
		}
	}
	return nil
}

// Detect runs one inference pass over a packed RGB image sized to the model
// input. Coordinates in the result are in model input space.
func (d *YOLODetector) Detect(img Image) (DetectionSet, error) {
	if img.Width != d.width || img.Height != d.height {
		return nil, fmt.Errorf("input is %dx%d, model expects %dx%d", img.Width, img.Height, d.width, d.height)
	}
	if want := img.Width * img.Height * 3; len(img.Pixels) != want {
		return nil, fmt.Errorf("pixel buffer is %d bytes, want %d", len(img.Pixels), want)
	}

	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap image data: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(d.width, d.height),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	raw := make([]RawDetection, 0, len(data)/yoloOutputStride)
	for i := 0; i+yoloOutputStride <= len(data); i += yoloOutputStride {
		raw = append(raw, RawDetection{
			X1:         float64(data[i]),
			Y1:         float64(data[i+1]),
			X2:         float64(data[i+2]),
			Y2:         float64(data[i+3]),
			Confidence: float64(data[i+4]),
			ClassID:    int(data[i+5]),
		})
	}

	return Postprocess(raw, d.cfg), nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
