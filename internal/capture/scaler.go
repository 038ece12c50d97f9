package capture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/tonu1990/edgecam/internal/pipeline"
)

// InferenceScaler returns a scale function that resizes frames to the model
// input size and converts BGR to RGB. The input frame is left untouched;
// the caller owns both frames.
func InferenceScaler(width, height int) pipeline.ScaleFunc {
	size := image.Pt(width, height)
	return func(fr pipeline.Frame) (pipeline.Frame, error) {
		mf, ok := fr.(*MatFrame)
		if !ok {
			return scaleBuffer(fr, width, height)
		}

		resized := gocv.NewMat()
		gocv.Resize(*mf.Mat(), &resized, size, 0, 0, gocv.InterpolationLinear)
		gocv.CvtColor(resized, &resized, gocv.ColorBGRToRGB)

		return NewMatFrame(resized, fr.Timestamp()), nil
	}
}

// scaleBuffer handles plain buffer frames with nearest-neighbour sampling
// and the same BGR to RGB swap. Mock playback goes through here.
func scaleBuffer(fr pipeline.Frame, width, height int) (pipeline.Frame, error) {
	srcW, srcH := fr.Size()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("cannot scale empty %dx%d frame", srcW, srcH)
	}
	src, err := fr.Pixels()
	if err != nil {
		return nil, err
	}

	dst := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		sy := y * srcH / height
		for x := 0; x < width; x++ {
			sx := x * srcW / width
			si := (sy*srcW + sx) * 3
			di := (y*width + x) * 3
			dst[di] = src[si+2]
			dst[di+1] = src[si+1]
			dst[di+2] = src[si]
		}
	}

	out, err := NewBufferFrame(width, height, dst, fr.Timestamp())
	if err != nil {
		return nil, err
	}
	return out, nil
}
