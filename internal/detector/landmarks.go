// Package detector provides face landmark detection interfaces and types.
package detector

import "github.com/ayusman/mouthosc/internal/geometry"

// NumLandmarks is the point count of the MediaPipe FaceMesh topology.
// Refined meshes append 10 iris points after these.
const NumLandmarks = 468

// Point3D represents a landmark in normalized image coordinates.
// X and Y are in [0,1] relative to frame width and height; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceLandmarks represents the mesh detected for one face.
type FaceLandmarks struct {
	Points []Point3D `json:"points"`
	Score  float64   `json:"score"`
}

// Len returns the number of points in the mesh.
func (f *FaceLandmarks) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Points)
}

// Planar drops the depth component and returns the points as 2D positions.
// Returns nil for a nil receiver.
func (f *FaceLandmarks) Planar() []geometry.Point {
	if f == nil {
		return nil
	}
	out := make([]geometry.Point, len(f.Points))
	for i, p := range f.Points {
		out[i] = geometry.Point{X: p.X, Y: p.Y}
	}
	return out
}
