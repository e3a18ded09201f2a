package metrics

import (
	"math"

	"github.com/ayusman/mouthosc/internal/geometry"
)

// LandmarkSet is one frame's landmarks in normalized [0,1] image coordinates,
// ordered by the detector's numbering.
type LandmarkSet []geometry.Point

// RatioPair holds mouth width and height, both divided by the estimated face width.
type RatioPair struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// minFaceWidthPx keeps the face width away from zero when the cheek points collapse.
const minFaceWidthPx = 1.0

// Extractor computes RatioPairs using a fixed Topology.
type Extractor struct {
	topology Topology
}

// NewExtractor creates an Extractor for the given topology.
func NewExtractor(t Topology) *Extractor {
	return &Extractor{topology: t}
}

// Topology returns the topology the extractor reads.
func (e *Extractor) Topology() Topology {
	return e.topology
}

// PixelPoint projects the landmark at idx into pixel space, truncating to whole pixels.
func (e *Extractor) PixelPoint(set LandmarkSet, idx LandmarkIndex, width, height int) geometry.Point {
	l := set[e.topology.Index(idx)]
	return geometry.Point{
		X: math.Trunc(l.X * float64(width)),
		Y: math.Trunc(l.Y * float64(height)),
	}
}

// PixelPoints projects all named landmarks into pixel space.
func (e *Extractor) PixelPoints(set LandmarkSet, width, height int) map[LandmarkIndex]geometry.Point {
	points := make(map[LandmarkIndex]geometry.Point, numIndices)
	for _, idx := range Indices() {
		points[idx] = e.PixelPoint(set, idx, width, height)
	}
	return points
}

// Extract computes the mouth ratios for one frame.
// The set must satisfy e.Topology().Fits(len(set)); callers check this before calling.
func (e *Extractor) Extract(set LandmarkSet, width, height int) RatioPair {
	mouthLeft := e.PixelPoint(set, MouthLeft, width, height)
	mouthRight := e.PixelPoint(set, MouthRight, width, height)
	upperLip := e.PixelPoint(set, UpperLip, width, height)
	lowerLip := e.PixelPoint(set, LowerLip, width, height)
	cheekLeft := e.PixelPoint(set, CheekLeft, width, height)
	cheekRight := e.PixelPoint(set, CheekRight, width, height)

	mouthWidthPx := geometry.Distance(mouthLeft, mouthRight)
	mouthHeightPx := geometry.Distance(upperLip, lowerLip)
	faceWidthPx := math.Max(minFaceWidthPx, geometry.Distance(cheekLeft, cheekRight))

	return RatioPair{
		Width:  mouthWidthPx / faceWidthPx,
		Height: mouthHeightPx / faceWidthPx,
	}
}
