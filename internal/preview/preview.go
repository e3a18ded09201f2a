// Package preview draws landmarks and signal values onto frames and shows them in a window.
package preview

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// QuitKey closes the preview loop when pressed in the window.
const QuitKey = 'q'

var (
	meshColor  = color.RGBA{R: 192, G: 192, B: 192, A: 0}
	mouthColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	lipColor   = color.RGBA{R: 224, G: 224, B: 224, A: 0}
	textColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

// lipContours are the FaceMesh lip outlines as landmark chains: outer lower,
// outer upper, inner lower, inner upper.
var lipContours = [][]int{
	{61, 146, 91, 181, 84, 17, 314, 405, 321, 375, 291},
	{61, 185, 40, 39, 37, 0, 267, 269, 270, 409, 291},
	{78, 95, 88, 178, 87, 14, 317, 402, 318, 324, 308},
	{78, 191, 80, 81, 82, 13, 312, 311, 310, 415, 308},
}

// LipConnections returns the FaceMesh lip edges as landmark index pairs.
func LipConnections() [][2]int {
	var edges [][2]int
	for _, chain := range lipContours {
		for i := 1; i < len(chain); i++ {
			edges = append(edges, [2]int{chain[i-1], chain[i]})
		}
	}
	return edges
}

// Overlay is what gets drawn on top of a frame.
type Overlay struct {
	// Mesh holds every landmark in pixel coordinates.
	Mesh []image.Point
	// Mouth holds the highlighted mouth landmarks in pixel coordinates.
	Mouth []image.Point
	// Width and Height are the mapped signal values; drawn only when HasSignal is set.
	Width     float64
	Height    float64
	HasSignal bool
}

// Annotate draws the overlay onto frame in place.
func Annotate(frame *gocv.Mat, o Overlay) {
	if frame == nil || frame.Empty() {
		return
	}

	for _, e := range LipConnections() {
		if e[0] >= len(o.Mesh) || e[1] >= len(o.Mesh) {
			continue
		}
		gocv.Line(frame, o.Mesh[e[0]], o.Mesh[e[1]], lipColor, 1)
	}
	for _, p := range o.Mesh {
		gocv.Circle(frame, p, 1, meshColor, -1)
	}
	for _, p := range o.Mouth {
		gocv.Circle(frame, p, 3, mouthColor, -1)
	}

	if o.HasSignal {
		gocv.PutText(frame, fmt.Sprintf("width: %.2f", o.Width), image.Pt(12, 28), gocv.FontHersheySimplex, 0.8, textColor, 2)
		gocv.PutText(frame, fmt.Sprintf("height: %.2f", o.Height), image.Pt(12, 60), gocv.FontHersheySimplex, 0.8, textColor, 2)
	}
}

// Window shows frames in an OpenCV window.
type Window struct {
	window *gocv.Window
}

// NewWindow opens a preview window with the given title.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Show displays frame and polls the keyboard once.
// It reports true when the quit key was pressed.
func (w *Window) Show(frame *gocv.Mat) bool {
	w.window.IMShow(*frame)
	key := w.window.WaitKey(1) & 0xFF
	return key == QuitKey
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}
