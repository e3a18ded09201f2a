// Package app runs the frame loop that turns detected faces into mouth signals.
package app

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/mouthosc/internal/capture"
	"github.com/ayusman/mouthosc/internal/detector"
	"github.com/ayusman/mouthosc/internal/metrics"
	"github.com/ayusman/mouthosc/internal/preview"
	"github.com/ayusman/mouthosc/internal/signal"
)

// HeadlessSleep is the pause between frames when no preview window is shown.
const HeadlessSleep = time.Millisecond

// Preview shows annotated frames and reports when the user asked to quit.
type Preview interface {
	Show(frame *gocv.Mat) bool
	Close() error
}

// Publisher receives every annotated frame, e.g. for the monitor stream.
type Publisher interface {
	Publish(frame *gocv.Mat) error
}

// Config holds the collaborators of the frame loop.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	// Extractor defaults to the FaceMesh topology.
	Extractor *metrics.Extractor
	// Mapper defaults to signal.DefaultMapper.
	Mapper *signal.Mapper
	Sink   signal.Sink
	// Preview is nil in headless mode.
	Preview Preview
	// Frames is optional.
	Frames Publisher
	// Flip mirrors frames horizontally before detection.
	Flip bool
	Log  *logrus.Entry
}

// Stats counts what the loop has processed so far.
type Stats struct {
	Frames  uint64
	Faces   uint64
	Emitted uint64
}

// Result is the outcome of processing one frame.
type Result struct {
	// Face is nil when no face was detected.
	Face *detector.FaceLandmarks
	// Pair is nil when no face was detected or the landmark set was rejected.
	Pair *signal.Pair
	// Emitted reports whether Pair was handed to the sink.
	Emitted bool
}

// App is the single-threaded frame loop.
type App struct {
	camera    capture.Camera
	detector  detector.Detector
	extractor *metrics.Extractor
	mapper    signal.Mapper
	sink      signal.Sink
	preview   Preview
	frames    Publisher
	flip      bool
	log       *logrus.Entry
	sleep     time.Duration

	frameCount atomic.Uint64
	faceCount  atomic.Uint64
	emitCount  atomic.Uint64
	paused     atomic.Bool
}

// New creates an App from config. Camera, Detector and Sink are required.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.Sink == nil {
		return nil, errors.New("app: sink is required")
	}

	a := &App{
		camera:    config.Camera,
		detector:  config.Detector,
		extractor: config.Extractor,
		mapper:    signal.DefaultMapper(),
		sink:      config.Sink,
		preview:   config.Preview,
		frames:    config.Frames,
		flip:      config.Flip,
		log:       config.Log,
		sleep:     HeadlessSleep,
	}
	if a.extractor == nil {
		a.extractor = metrics.NewExtractor(metrics.FaceMeshTopology)
	}
	if config.Mapper != nil {
		a.mapper = *config.Mapper
	}
	if a.log == nil {
		a.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return a, nil
}

// SetPaused stops or resumes emission. A paused loop still reads, detects and previews.
func (a *App) SetPaused(paused bool) {
	a.paused.Store(paused)
	a.log.WithField("paused", paused).Info("Emission toggled")
}

// IsPaused reports whether emission is paused.
func (a *App) IsPaused() bool {
	return a.paused.Load()
}

// Stats returns a snapshot of the loop counters.
func (a *App) Stats() Stats {
	return Stats{
		Frames:  a.frameCount.Load(),
		Faces:   a.faceCount.Load(),
		Emitted: a.emitCount.Load(),
	}
}

// ProcessFrame detects a face in frame and, if one is found, emits its mouth signals.
// Detector errors are returned; a missing face is not an error.
func (a *App) ProcessFrame(frame *gocv.Mat) (Result, error) {
	n := a.frameCount.Add(1)

	face, err := a.detector.Detect(frame)
	if err != nil {
		return Result{}, fmt.Errorf("detect frame %d: %w", n, err)
	}
	if face == nil {
		return Result{}, nil
	}
	a.faceCount.Add(1)

	res := Result{Face: face}
	topology := a.extractor.Topology()
	if err := topology.Validate(face.Len()); err != nil {
		a.log.WithFields(logrus.Fields{
			"frame": n,
			"error": err,
		}).Warn("Skipping landmark set")
		return res, nil
	}

	ratios := a.extractor.Extract(face.Planar(), frame.Cols(), frame.Rows())
	pair := a.mapper.Map(ratios)
	res.Pair = &pair

	if a.paused.Load() {
		return res, nil
	}

	a.sink.Emit(pair)
	a.emitCount.Add(1)
	res.Emitted = true

	a.log.WithFields(logrus.Fields{
		"frame":  n,
		"width":  pair.Width.Value,
		"height": pair.Height.Value,
	}).Debug("Emitted")

	return res, nil
}

// overlay builds the preview drawing for a processed frame.
func (a *App) overlay(res Result, width, height int) preview.Overlay {
	var o preview.Overlay
	if res.Face == nil {
		return o
	}

	o.Mesh = make([]image.Point, 0, res.Face.Len())
	for _, p := range res.Face.Points {
		o.Mesh = append(o.Mesh, image.Pt(
			int(math.Trunc(p.X*float64(width))),
			int(math.Trunc(p.Y*float64(height))),
		))
	}

	if res.Pair == nil {
		return o
	}

	pts := a.extractor.PixelPoints(res.Face.Planar(), width, height)
	for _, idx := range []metrics.LandmarkIndex{metrics.MouthLeft, metrics.MouthRight, metrics.UpperLip, metrics.LowerLip} {
		p := pts[idx]
		o.Mouth = append(o.Mouth, image.Pt(int(p.X), int(p.Y)))
	}
	o.Width = res.Pair.Width.Value
	o.Height = res.Pair.Height.Value
	o.HasSignal = true
	return o
}

// release closes every collaborator owned by the loop.
func (a *App) release() {
	if err := a.camera.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing camera")
	}
	if err := a.detector.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing detector")
	}
	if a.preview != nil {
		if err := a.preview.Close(); err != nil {
			a.log.WithError(err).Warn("Error closing preview")
		}
	}
	if c, ok := a.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("Error closing sinks")
		}
	}
}
