// Package overlay draws detection results onto display frames.
package overlay

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/tonu1990/edgecam/internal/capture"
	"github.com/tonu1990/edgecam/internal/detect"
	"github.com/tonu1990/edgecam/internal/pipeline"
)

var (
	boxColor   = color.RGBA{0, 255, 0, 0}
	labelColor = color.RGBA{255, 255, 255, 0}
	labelFill  = color.RGBA{0, 96, 0, 0}
)

const (
	boxThickness = 2
	fontScale    = 0.5
	labelPad     = 4
)

// Renderer draws the latest whiteboard contents onto frames in place. It is
// installed as the detection branch's draw hook; frames that are not Mat
// backed pass through untouched.
type Renderer struct {
	board *detect.Whiteboard
}

// NewRenderer creates a renderer reading from the given whiteboard.
func NewRenderer(board *detect.Whiteboard) *Renderer {
	return &Renderer{board: board}
}

// Hook returns the draw function to install on the detection branch.
func (r *Renderer) Hook() pipeline.DrawHook {
	return r.Draw
}

// Draw renders every detection currently on the whiteboard.
func (r *Renderer) Draw(fr pipeline.Frame) {
	mf, ok := fr.(*capture.MatFrame)
	if !ok {
		return
	}
	mat := mf.Mat()

	for _, d := range r.board.Latest() {
		drawDetection(mat, d)
	}
}

func drawDetection(mat *gocv.Mat, d detect.Detection) {
	box := image.Rect(int(d.X), int(d.Y), int(d.X+d.W), int(d.Y+d.H))
	gocv.Rectangle(mat, box, boxColor, boxThickness)

	label := d.Label()
	textSize := gocv.GetTextSize(label, gocv.FontHersheySimplex, fontScale, 1)

	origin := labelOrigin(box, textSize.Y)
	bg := image.Rect(origin.X, origin.Y-textSize.Y-labelPad, origin.X+textSize.X+labelPad, origin.Y+labelPad)
	gocv.Rectangle(mat, bg, labelFill, -1)
	gocv.PutText(mat, label, origin, gocv.FontHersheySimplex, fontScale, labelColor, 1)
}

// labelOrigin places the label baseline just above the box, or just inside
// its top edge when the label would be clipped by the frame.
func labelOrigin(box image.Rectangle, textHeight int) image.Point {
	y := box.Min.Y - labelPad
	if y-textHeight < 0 {
		y = box.Min.Y + textHeight + labelPad
	}
	return image.Pt(box.Min.X, y)
}
