package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/mouthosc/internal/capture"
	"github.com/ayusman/mouthosc/internal/preview"
)

// Run reads frames until the source ends, the user quits the preview,
// ctx is cancelled or the detector fails. Cancellation is checked between frames.
//
// A frame source failure ends the loop normally and Run returns nil.
// A detector failure is returned as an error. Every collaborator is closed
// before Run returns.
func (a *App) Run(ctx context.Context) error {
	if !a.camera.IsOpen() {
		if err := a.camera.Open(); err != nil {
			a.release()
			return fmt.Errorf("failed to open camera: %w", err)
		}
	}
	defer a.release()

	a.log.WithField("headless", a.preview == nil).Info("Frame loop started")
	defer func() {
		st := a.Stats()
		a.log.WithFields(logrus.Fields{
			"frames":  st.Frames,
			"faces":   st.Faces,
			"emitted": st.Emitted,
		}).Info("Frame loop stopped")
	}()

	reqWidth, reqHeight := a.camera.Resolution()
	sized := false

	for {
		if err := ctx.Err(); err != nil {
			a.log.WithField("reason", context.Cause(ctx)).Info("Stopping")
			return nil
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			a.log.WithError(err).Info("Frame source ended")
			return nil
		}
		if !sized {
			sized = true
			a.logCaptureSize(reqWidth, reqHeight, frame.Cols(), frame.Rows())
		}

		quit, err := a.step(frame)
		frame.Close()
		if err != nil {
			return err
		}
		if quit {
			a.log.Info("Quit requested from preview")
			return nil
		}
	}
}

// logCaptureSize reports the first frame's size. Devices may ignore the
// requested size; metrics always use the size frames actually have.
func (a *App) logCaptureSize(reqWidth, reqHeight, width, height int) {
	entry := a.log.WithFields(logrus.Fields{
		"requested": fmt.Sprintf("%dx%d", reqWidth, reqHeight),
		"actual":    fmt.Sprintf("%dx%d", width, height),
	})
	if reqWidth != width || reqHeight != height {
		entry.Warn("Camera delivers a different size than requested")
		return
	}
	entry.Info("Capture size")
}

// step processes one frame and renders it. It reports whether the user asked to quit.
func (a *App) step(frame *gocv.Mat) (bool, error) {
	if a.flip {
		capture.Mirror(frame)
	}

	res, err := a.ProcessFrame(frame)
	if err != nil {
		return false, err
	}

	if a.preview == nil && a.frames == nil {
		time.Sleep(a.sleep)
		return false, nil
	}

	preview.Annotate(frame, a.overlay(res, frame.Cols(), frame.Rows()))

	if a.frames != nil {
		if err := a.frames.Publish(frame); err != nil {
			a.log.WithError(err).Debug("Failed to publish frame")
		}
	}

	if a.preview == nil {
		time.Sleep(a.sleep)
		return false, nil
	}
	return a.preview.Show(frame), nil
}
