package detector

import (
	"sync"

	"github.com/ayusman/mouthosc/internal/metrics"
	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results, either one fixed face
// or a per-call sequence.
type MockDetector struct {
	mu       sync.Mutex
	face     *FaceLandmarks
	sequence []*FaceLandmarks
	err      error
	calls    int
	closed   bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFace sets the face that will be returned by every Detect call.
func (m *MockDetector) SetFace(face *FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.face = face
	m.sequence = nil
}

// SetSequence sets one result per Detect call. A nil entry means no face in that frame.
// Once the sequence is exhausted Detect returns nil.
func (m *MockDetector) SetSequence(faces []*FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = faces
	m.face = nil
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured face or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*FaceLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if m.sequence != nil {
		if call >= len(m.sequence) {
			return nil, nil
		}
		return m.sequence[call], nil
	}
	return m.face, nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// faceWith returns a FaceMesh-sized face with every point at the frame
// center and the six named points placed as given (normalized coordinates).
func faceWith(mouthLeft, mouthRight, upperLip, lowerLip, cheekLeft, cheekRight Point3D) *FaceLandmarks {
	face := &FaceLandmarks{
		Points: make([]Point3D, NumLandmarks),
		Score:  0.97,
	}
	for i := range face.Points {
		face.Points[i] = Point3D{X: 0.5, Y: 0.5}
	}

	topo := metrics.FaceMeshTopology
	face.Points[topo.Index(metrics.MouthLeft)] = mouthLeft
	face.Points[topo.Index(metrics.MouthRight)] = mouthRight
	face.Points[topo.Index(metrics.UpperLip)] = upperLip
	face.Points[topo.Index(metrics.LowerLip)] = lowerLip
	face.Points[topo.Index(metrics.CheekLeft)] = cheekLeft
	face.Points[topo.Index(metrics.CheekRight)] = cheekRight
	return face
}

// NeutralFaceLandmarks returns a preset face with a relaxed, closed mouth.
// On a 640x480 frame: mouth 160px wide and 3px tall, face 480px wide.
func NeutralFaceLandmarks() *FaceLandmarks {
	return faceWith(
		Point3D{X: 0.375, Y: 0.625},
		Point3D{X: 0.625, Y: 0.625},
		Point3D{X: 0.5, Y: 0.625},
		Point3D{X: 0.5, Y: 0.6328125},
		Point3D{X: 0.125, Y: 0.5},
		Point3D{X: 0.875, Y: 0.5},
	)
}

// OpenMouthLandmarks returns a preset face with the mouth wide open.
// On a 640x480 frame: mouth 320px wide and 120px tall, face 480px wide.
func OpenMouthLandmarks() *FaceLandmarks {
	return faceWith(
		Point3D{X: 0.25, Y: 0.625},
		Point3D{X: 0.75, Y: 0.625},
		Point3D{X: 0.5, Y: 0.5},
		Point3D{X: 0.5, Y: 0.75},
		Point3D{X: 0.125, Y: 0.5},
		Point3D{X: 0.875, Y: 0.5},
	)
}
