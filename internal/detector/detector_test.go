package detector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mouthosc/internal/geometry"
	"github.com/ayusman/mouthosc/internal/logging"
	"github.com/ayusman/mouthosc/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestFaceLandmarks_Planar(t *testing.T) {
	t.Run("drops depth", func(t *testing.T) {
		face := &FaceLandmarks{Points: []Point3D{
			{X: 0.1, Y: 0.2, Z: -0.05},
			{X: 0.3, Y: 0.4, Z: 0.02},
		}}

		got := face.Planar()

		assert.Equal(t, []geometry.Point{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4}}, got)
		assert.Equal(t, 2, face.Len())
	})

	t.Run("nil face", func(t *testing.T) {
		var face *FaceLandmarks
		assert.Nil(t, face.Planar())
		assert.Zero(t, face.Len())
	})
}

func TestMockDetector(t *testing.T) {
	t.Run("returns no face by default", func(t *testing.T) {
		mock := NewMockDetector()

		face, err := mock.Detect(nil)

		require.NoError(t, err)
		assert.Nil(t, face)
	})

	t.Run("returns configured face", func(t *testing.T) {
		mock := NewMockDetector()
		want := OpenMouthLandmarks()
		mock.SetFace(want)

		for i := 0; i < 3; i++ {
			face, err := mock.Detect(nil)
			require.NoError(t, err)
			assert.Same(t, want, face)
		}
		assert.Equal(t, 3, mock.Calls())
	})

	t.Run("plays back sequence", func(t *testing.T) {
		mock := NewMockDetector()
		open := OpenMouthLandmarks()
		mock.SetSequence([]*FaceLandmarks{open, nil, open})

		var got []*FaceLandmarks
		for i := 0; i < 4; i++ {
			face, err := mock.Detect(nil)
			require.NoError(t, err)
			got = append(got, face)
		}

		assert.Equal(t, []*FaceLandmarks{open, nil, open, nil}, got)
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)
		mock.SetFace(NeutralFaceLandmarks())

		face, err := mock.Detect(nil)

		assert.Equal(t, expectedErr, err)
		assert.Nil(t, face)
	})

	t.Run("Close marks closed", func(t *testing.T) {
		mock := NewMockDetector()

		require.NoError(t, mock.Close())
		assert.True(t, mock.Closed())
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
	})
}

func TestFixtures_MouthRatios(t *testing.T) {
	e := metrics.NewExtractor(metrics.FaceMeshTopology)

	t.Run("neutral face", func(t *testing.T) {
		face := NeutralFaceLandmarks()
		require.True(t, metrics.FaceMeshTopology.Fits(face.Len()))

		r := e.Extract(face.Planar(), 640, 480)

		assert.InDelta(t, 160.0/480.0, r.Width, epsilon)
		assert.InDelta(t, 3.0/480.0, r.Height, epsilon)
	})

	t.Run("open mouth", func(t *testing.T) {
		face := OpenMouthLandmarks()

		r := e.Extract(face.Planar(), 640, 480)

		assert.InDelta(t, 320.0/480.0, r.Width, epsilon)
		assert.InDelta(t, 120.0/480.0, r.Height, epsilon)
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("no faces", func(t *testing.T) {
		face, err := parseResponse([]byte(`{"faces": []}` + "\n"))
		require.NoError(t, err)
		assert.Nil(t, face)
	})

	t.Run("first face only", func(t *testing.T) {
		line := `{"faces": [
			{"points": [{"x": 0.1, "y": 0.2, "z": 0.0}], "score": 0.9},
			{"points": [{"x": 0.7, "y": 0.8, "z": 0.0}], "score": 0.8}
		]}`

		face, err := parseResponse([]byte(line))

		require.NoError(t, err)
		require.NotNil(t, face)
		assert.Equal(t, []Point3D{{X: 0.1, Y: 0.2}}, face.Points)
		assert.Equal(t, 0.9, face.Score)
	})

	t.Run("service error", func(t *testing.T) {
		_, err := parseResponse([]byte(`{"error": "decode failed"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode failed")
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseResponse([]byte(`{"faces": [`))
		require.Error(t, err)
	})
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01}

	require.NoError(t, writeFrame(&buf, payload))

	out := buf.Bytes()
	require.Len(t, out, 4+len(payload))
	assert.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(out[:4]))
	assert.Equal(t, payload, out[4:])
}

func writeService(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ServiceScript)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestNewMediaPipeDetector_Startup(t *testing.T) {
	log := logging.Component(logging.Discard(), "detector")

	t.Run("missing script fails immediately", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ScriptPath = filepath.Join(t.TempDir(), "absent.py")

		d, err := NewMediaPipeDetector(cfg, log)

		assert.Nil(t, d)
		assert.ErrorIs(t, err, ErrServiceNotFound)
	})

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	t.Run("service reporting not ready fails", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PythonPath = "/bin/sh"
		cfg.ScriptPath = writeService(t, "echo '{\"ready\": false, \"error\": \"No module named mediapipe\"}'\n")

		d, err := NewMediaPipeDetector(cfg, log)

		assert.Nil(t, d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mediapipe")
	})

	t.Run("service exiting during startup fails", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PythonPath = "/bin/sh"
		cfg.ScriptPath = writeService(t, "exit 1\n")

		d, err := NewMediaPipeDetector(cfg, log)

		assert.Nil(t, d)
		require.Error(t, err)
	})

	t.Run("ready service starts and closes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PythonPath = "/bin/sh"
		cfg.ScriptPath = writeService(t, "echo '{\"ready\": true}'\ncat > /dev/null\n")

		d, err := NewMediaPipeDetector(cfg, log)
		require.NoError(t, err)

		require.NoError(t, d.Close())
		require.NoError(t, d.Close(), "second Close is a no-op")

		_, err = d.Detect(nil)
		assert.Error(t, err)
	})
}
