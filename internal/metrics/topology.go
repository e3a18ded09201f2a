// Package metrics derives scale-invariant mouth ratios from a face landmark set.
package metrics

import (
	"errors"
	"fmt"
)

// ErrTopologyMismatch is returned when a landmark set is too small for a topology.
var ErrTopologyMismatch = errors.New("landmark set does not match topology")

// LandmarkIndex names an anatomical point used by the extractor.
type LandmarkIndex int

// Anatomical points read by the extractor.
const (
	MouthLeft LandmarkIndex = iota
	MouthRight
	UpperLip
	LowerLip
	CheekLeft
	CheekRight
	numIndices
)

var indexNames = [numIndices]string{
	MouthLeft:  "mouth-left",
	MouthRight: "mouth-right",
	UpperLip:   "upper-lip",
	LowerLip:   "lower-lip",
	CheekLeft:  "cheek-left",
	CheekRight: "cheek-right",
}

func (i LandmarkIndex) String() string {
	if i < 0 || i >= numIndices {
		return fmt.Sprintf("LandmarkIndex(%d)", int(i))
	}
	return indexNames[i]
}

// Indices returns every LandmarkIndex in declaration order.
func Indices() []LandmarkIndex {
	out := make([]LandmarkIndex, numIndices)
	for i := range out {
		out[i] = LandmarkIndex(i)
	}
	return out
}

// Topology maps each LandmarkIndex to a position in a detector's landmark set.
// Size is the total point count the detector produces.
type Topology struct {
	Name   string
	Size   int
	Points [numIndices]int
}

// FaceMeshTopology is the MediaPipe FaceMesh 468-point numbering.
// See: https://ai.google.dev/edge/mediapipe/solutions/vision/face_landmarker
var FaceMeshTopology = Topology{
	Name: "facemesh-468",
	Size: 468,
	Points: [numIndices]int{
		MouthLeft:  61,
		MouthRight: 291,
		UpperLip:   13,
		LowerLip:   14,
		CheekLeft:  234,
		CheekRight: 454,
	},
}

// Index returns the detector position of the given anatomical point.
func (t Topology) Index(i LandmarkIndex) int {
	return t.Points[i]
}

// Fits reports whether a landmark set of n points can be read with this topology.
func (t Topology) Fits(n int) bool {
	return t.Validate(n) == nil
}

// Validate checks that a landmark set of n points covers every index of the topology.
func (t Topology) Validate(n int) error {
	if n < t.Size {
		return fmt.Errorf("%w: %s expects %d points, got %d", ErrTopologyMismatch, t.Name, t.Size, n)
	}
	for _, idx := range Indices() {
		p := t.Points[idx]
		if p < 0 || p >= n {
			return fmt.Errorf("%w: %s index %d out of range for %d points", ErrTopologyMismatch, idx, p, n)
		}
	}
	return nil
}
