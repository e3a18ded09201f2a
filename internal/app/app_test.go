package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/mouthosc/internal/capture"
	"github.com/ayusman/mouthosc/internal/detector"
	"github.com/ayusman/mouthosc/internal/logging"
	"github.com/ayusman/mouthosc/internal/metrics"
	"github.com/ayusman/mouthosc/internal/signal"
)

const (
	frameWidth  = 640
	frameHeight = 480
)

type fakePreview struct {
	shown  int
	quitOn int
	closed int
}

func (p *fakePreview) Show(frame *gocv.Mat) bool {
	p.shown++
	return p.quitOn > 0 && p.shown >= p.quitOn
}

func (p *fakePreview) Close() error {
	p.closed++
	return nil
}

type fakePublisher struct {
	published int
}

func (p *fakePublisher) Publish(frame *gocv.Mat) error {
	p.published++
	return nil
}

type closingSink struct {
	*signal.Recorder
	closed int
}

func (s *closingSink) Close() error {
	s.closed++
	return nil
}

type fixture struct {
	camera   *capture.MockCamera
	detector *detector.MockDetector
	sink     *signal.Recorder
	app      *App
}

func newFixture(t *testing.T, frames int, cfg Config) *fixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping frame loop test in short mode")
	}

	f := &fixture{
		camera:   capture.NewBlankMockCamera(frames, frameWidth, frameHeight),
		detector: detector.NewMockDetector(),
		sink:     signal.NewRecorder(),
	}
	t.Cleanup(f.camera.CloseFrames)

	cfg.Camera = f.camera
	cfg.Detector = f.detector
	if cfg.Sink == nil {
		cfg.Sink = f.sink
	}
	cfg.Log = logging.Component(logging.Discard(), "app")

	a, err := New(cfg)
	require.NoError(t, err)
	a.sleep = 0
	f.app = a
	return f
}

func expectedPair(face *detector.FaceLandmarks) signal.Pair {
	ext := metrics.NewExtractor(metrics.FaceMeshTopology)
	return signal.DefaultMapper().Map(ext.Extract(face.Planar(), frameWidth, frameHeight))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	sink := signal.NewRecorder()
	det := detector.NewMockDetector()
	cam := capture.NewMockCamera(nil, false)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no camera", Config{Detector: det, Sink: sink}},
		{"no detector", Config{Camera: cam, Sink: sink}},
		{"no sink", Config{Camera: cam, Detector: det}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}

	a, err := New(Config{Camera: cam, Detector: det, Sink: sink})
	require.NoError(t, err)
	assert.Equal(t, metrics.FaceMeshTopology, a.extractor.Topology())
	assert.Equal(t, signal.DefaultMapper(), a.mapper)
}

func TestRun_OnePairPerFrameWithFace(t *testing.T) {
	f := newFixture(t, 8, Config{})

	neutral := detector.NeutralFaceLandmarks()
	open := detector.OpenMouthLandmarks()
	faces := []*detector.FaceLandmarks{neutral, open, neutral, open, nil, neutral, open, neutral}
	f.detector.SetSequence(faces)

	require.NoError(t, f.app.Run(context.Background()))

	var want []signal.Signal
	for _, face := range faces {
		if face == nil {
			continue
		}
		p := expectedPair(face)
		want = append(want, p.Width, p.Height)
	}

	if diff := cmp.Diff(want, f.sink.Signals()); diff != "" {
		t.Errorf("emitted signals mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, f.sink.Pairs(), 7)
	assert.Equal(t, Stats{Frames: 8, Faces: 7, Emitted: 7}, f.app.Stats())
}

func TestRun_FixtureValues(t *testing.T) {
	f := newFixture(t, 2, Config{})
	f.detector.SetSequence([]*detector.FaceLandmarks{
		detector.NeutralFaceLandmarks(),
		detector.OpenMouthLandmarks(),
	})

	require.NoError(t, f.app.Run(context.Background()))

	pairs := f.sink.Pairs()
	require.Len(t, pairs, 2)

	assert.Equal(t, signal.ChannelWidth, pairs[0].Width.Channel)
	assert.Equal(t, signal.ChannelHeight, pairs[0].Height.Channel)
	assert.InDelta(t, 10.0, pairs[0].Width.Value, 1e-9)
	assert.InDelta(t, 5.0, pairs[0].Height.Value, 1e-9)
	assert.InDelta(t, 16.0, pairs[1].Width.Value, 1e-9)
	assert.InDelta(t, 5.0+5.0*(0.25-0.05)/0.6, pairs[1].Height.Value, 1e-9)
}

func TestRun_NoFaceIsSilent(t *testing.T) {
	f := newFixture(t, 5, Config{})

	require.NoError(t, f.app.Run(context.Background()))

	assert.Empty(t, f.sink.Pairs())
	assert.Equal(t, Stats{Frames: 5}, f.app.Stats())
}

func TestRun_SourceFailureReleasesResources(t *testing.T) {
	f := newFixture(t, 0, Config{})

	err := f.app.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, f.camera.CloseCount())
	assert.True(t, f.detector.Closed())
	assert.False(t, f.camera.IsOpen())
}

func TestRun_CancelledBetweenFrames(t *testing.T) {
	f := newFixture(t, 5, Config{})
	f.detector.SetFace(detector.NeutralFaceLandmarks())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.app.Run(ctx))

	assert.Equal(t, 0, f.camera.Delivered())
	assert.Empty(t, f.sink.Pairs())
	assert.True(t, f.detector.Closed())
}

func TestRun_CancelStopsAfterCurrentFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := signal.NewRecorder()
	sink := signal.SinkFunc(func(p signal.Pair) {
		recorder.Emit(p)
		cancel()
	})

	f := newFixture(t, 5, Config{Sink: sink})
	f.detector.SetFace(detector.NeutralFaceLandmarks())

	require.NoError(t, f.app.Run(ctx))

	assert.Len(t, recorder.Pairs(), 1)
	assert.Equal(t, 1, f.camera.Delivered())
}

func TestRun_DetectorErrorIsFatal(t *testing.T) {
	f := newFixture(t, 3, Config{})
	errBroken := errors.New("service died")
	f.detector.SetError(errBroken)

	err := f.app.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, 1, f.camera.CloseCount())
	assert.True(t, f.detector.Closed())
}

func TestRun_TopologyMismatchSkipsFrame(t *testing.T) {
	f := newFixture(t, 3, Config{})
	short := &detector.FaceLandmarks{Points: make([]detector.Point3D, 10)}
	f.detector.SetSequence([]*detector.FaceLandmarks{
		detector.NeutralFaceLandmarks(),
		short,
		detector.NeutralFaceLandmarks(),
	})

	require.NoError(t, f.app.Run(context.Background()))

	assert.Len(t, f.sink.Pairs(), 2)
	assert.Equal(t, Stats{Frames: 3, Faces: 3, Emitted: 2}, f.app.Stats())
}

func TestRun_PausedEmitsNothing(t *testing.T) {
	f := newFixture(t, 4, Config{})
	f.detector.SetFace(detector.NeutralFaceLandmarks())
	f.app.SetPaused(true)

	require.NoError(t, f.app.Run(context.Background()))

	assert.True(t, f.app.IsPaused())
	assert.Empty(t, f.sink.Pairs())
	assert.Equal(t, Stats{Frames: 4, Faces: 4}, f.app.Stats())
}

func TestRun_PreviewQuit(t *testing.T) {
	pv := &fakePreview{quitOn: 2}
	pub := &fakePublisher{}
	f := newFixture(t, 5, Config{Preview: pv, Frames: pub})
	f.detector.SetFace(detector.OpenMouthLandmarks())

	require.NoError(t, f.app.Run(context.Background()))

	assert.Equal(t, 2, pv.shown)
	assert.Equal(t, 2, pub.published)
	assert.Equal(t, 1, pv.closed)
	assert.Len(t, f.sink.Pairs(), 2)
}

func TestRun_FlipStillEmits(t *testing.T) {
	f := newFixture(t, 2, Config{Flip: true})
	f.detector.SetFace(detector.NeutralFaceLandmarks())

	require.NoError(t, f.app.Run(context.Background()))

	assert.Len(t, f.sink.Pairs(), 2)
}

func TestRun_ClosesSink(t *testing.T) {
	sink := &closingSink{Recorder: signal.NewRecorder()}
	f := newFixture(t, 1, Config{Sink: sink})
	f.detector.SetFace(detector.NeutralFaceLandmarks())

	require.NoError(t, f.app.Run(context.Background()))

	assert.Equal(t, 1, sink.closed)
	assert.Len(t, sink.Pairs(), 1)
}

func TestProcessFrame_Result(t *testing.T) {
	f := newFixture(t, 0, Config{})
	frame := gocv.NewMatWithSize(frameHeight, frameWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()

	res, err := f.app.ProcessFrame(&frame)
	require.NoError(t, err)
	assert.Nil(t, res.Face)
	assert.Nil(t, res.Pair)
	assert.False(t, res.Emitted)

	f.detector.SetFace(detector.NeutralFaceLandmarks())
	res, err = f.app.ProcessFrame(&frame)
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	assert.True(t, res.Emitted)

	o := f.app.overlay(res, frameWidth, frameHeight)
	assert.True(t, o.HasSignal)
	assert.Len(t, o.Mouth, 4)
	assert.Len(t, o.Mesh, detector.NumLandmarks)
	assert.Equal(t, 10.0, o.Width)
}

type resizedCamera struct {
	*capture.MockCamera
	width, height int
}

func (c resizedCamera) Resolution() (int, int) {
	return c.width, c.height
}

func findEntry(hook *test.Hook, msg string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return e
		}
	}
	return nil
}

func TestRun_LogsCaptureSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantMsg       string
		wantLevel     logrus.Level
	}{
		{"matches request", frameWidth, frameHeight, "Capture size", logrus.InfoLevel},
		{"device ignored request", 1280, 720, "Camera delivers a different size than requested", logrus.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2, Config{})
			logger, hook := test.NewNullLogger()
			f.app.log = logrus.NewEntry(logger)
			f.app.camera = resizedCamera{MockCamera: f.camera, width: tt.width, height: tt.height}

			require.NoError(t, f.app.Run(context.Background()))

			e := findEntry(hook, tt.wantMsg)
			require.NotNil(t, e, "missing %q log entry", tt.wantMsg)
			assert.Equal(t, tt.wantLevel, e.Level)
			assert.Equal(t, "640x480", e.Data["actual"])
		})
	}
}

func TestProcessFrame_LogsEmissionAtDebug(t *testing.T) {
	f := newFixture(t, 0, Config{})
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f.app.log = logrus.NewEntry(logger)
	face := detector.NeutralFaceLandmarks()
	f.detector.SetFace(face)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frameHeight, frameWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, err := f.app.ProcessFrame(&frame)
	require.NoError(t, err)

	e := findEntry(hook, "Emitted")
	require.NotNil(t, e)
	assert.Equal(t, logrus.DebugLevel, e.Level)
	assert.Equal(t, expectedPair(face).Width.Value, e.Data["width"])
}
