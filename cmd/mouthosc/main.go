// Command mouthosc tracks mouth shape on a webcam feed and sends it as OSC.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ayusman/mouthosc/internal/app"
	"github.com/ayusman/mouthosc/internal/capture"
	"github.com/ayusman/mouthosc/internal/config"
	"github.com/ayusman/mouthosc/internal/detector"
	"github.com/ayusman/mouthosc/internal/emitter"
	"github.com/ayusman/mouthosc/internal/logging"
	"github.com/ayusman/mouthosc/internal/metrics"
	"github.com/ayusman/mouthosc/internal/preview"
	"github.com/ayusman/mouthosc/internal/server"
	"github.com/ayusman/mouthosc/internal/signal"
	"github.com/ayusman/mouthosc/internal/store"
	"github.com/ayusman/mouthosc/internal/tray"
)

const shutdownTimeout = 3 * time.Second

// The tray and the preview window run their native loops on the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newApp(run).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(action func(config.Config) error) *cli.App {
	def := config.Default()
	return &cli.App{
		Name:            "mouthosc",
		Usage:           "send mouth width and height from a webcam as OSC messages",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ip", Value: def.IP, Usage: "OSC target IP", EnvVars: env("ip")},
			&cli.IntFlag{Name: "port", Value: def.Port, Usage: "OSC target port", EnvVars: env("port")},
			&cli.IntFlag{Name: "camera", Value: def.Camera, Usage: "camera index", EnvVars: env("camera")},
			&cli.IntFlag{Name: "width", Value: def.Width, Usage: "capture width", EnvVars: env("width")},
			&cli.IntFlag{Name: "height", Value: def.Height, Usage: "capture height", EnvVars: env("height")},
			&cli.BoolFlag{Name: "no-show", Usage: "disable the preview window", EnvVars: env("no-show")},
			&cli.BoolFlag{Name: "flip", Usage: "mirror frames horizontally", EnvVars: env("flip")},
			&cli.Float64Flag{Name: "detection", Value: def.Detection, Usage: "minimum face detection confidence", EnvVars: env("detection")},
			&cli.Float64Flag{Name: "tracking", Value: def.Tracking, Usage: "minimum landmark tracking confidence", EnvVars: env("tracking")},
			&cli.BoolFlag{Name: "refine", Usage: "run FaceMesh with refined (iris) landmarks", EnvVars: env("refine")},
			&cli.StringFlag{Name: "script", Usage: "path to the FaceMesh service `SCRIPT`", EnvVars: env("script")},
			&cli.StringFlag{Name: "python", Usage: "Python `INTERPRETER` for the FaceMesh service", EnvVars: env("python")},
			&cli.StringFlag{Name: "record", Usage: "record emitted pairs into SQLite `FILE`", EnvVars: env("record")},
			&cli.StringFlag{Name: "monitor", Usage: "serve the monitor API on `ADDR`, e.g. localhost:8080", EnvVars: env("monitor")},
			&cli.BoolFlag{Name: "tray", Usage: "show a system tray menu (requires --no-show)", EnvVars: env("tray")},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", EnvVars: env("debug")},
			&cli.StringFlag{Name: "log-file", Usage: "also write logs to `FILE`", EnvVars: env("log-file")},
		},
		Action: func(c *cli.Context) error {
			cfg := configFromContext(c)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return action(cfg)
		},
	}
}

func env(flag string) []string {
	return []string{config.EnvVar(flag)}
}

func configFromContext(c *cli.Context) config.Config {
	return config.Config{
		IP:            c.String("ip"),
		Port:          c.Int("port"),
		Camera:        c.Int("camera"),
		Width:         c.Int("width"),
		Height:        c.Int("height"),
		Flip:          c.Bool("flip"),
		Show:          !c.Bool("no-show"),
		Detection:     c.Float64("detection"),
		Tracking:      c.Float64("tracking"),
		Refine:        c.Bool("refine"),
		ServiceScript: c.String("script"),
		Python:        c.String("python"),
		RecordPath:    c.String("record"),
		MonitorAddr:   c.String("monitor"),
		Tray:          c.Bool("tray"),
		Debug:         c.Bool("debug"),
		LogFile:       c.String("log-file"),
	}
}

func run(cfg config.Config) error {
	logger := logging.New(logging.Options{Debug: cfg.Debug, File: cfg.LogFile})
	log := logging.Component(logger, "main")

	log.WithFields(logrus.Fields{
		"target": cfg.Target(),
		"camera": cfg.Camera,
		"show":   cfg.Show,
	}).Info("Starting mouthosc")

	oscSink, err := emitter.NewEmitter(cfg.IP, cfg.Port, logging.Component(logger, "osc"))
	if err != nil {
		log.WithError(err).Error("Invalid OSC target")
		return cli.Exit("", 1)
	}

	det, err := detector.NewMediaPipeDetector(detector.Config{
		MaxFaces:        1,
		MinConfidence:   cfg.Detection,
		MinTrackingConf: cfg.Tracking,
		RefineLandmarks: cfg.Refine,
		ScriptPath:      cfg.ServiceScript,
		PythonPath:      cfg.Python,
	}, logging.Component(logger, "detector"))
	if err != nil {
		oscSink.Close()
		log.WithError(err).Error("Landmark detector unavailable")
		return cli.Exit("", 1)
	}

	sinks := signal.NewMulti(oscSink)
	loopCfg := app.Config{
		Camera:   capture.NewCamera(cfg.Camera, cfg.Width, cfg.Height),
		Detector: det,
		Sink:     sinks,
		Flip:     cfg.Flip,
		Log:      logging.Component(logger, "loop"),
	}

	var st *store.Store
	if cfg.RecordPath != "" {
		st, err = store.New(cfg.RecordPath)
		if err != nil {
			det.Close()
			log.WithError(err).Error("Failed to open recording database")
			return cli.Exit("", 1)
		}
		defer st.Close()

		rec, err := store.NewRecorder(st, cfg.Target(), metrics.FaceMeshTopology.Name, logging.Component(logger, "store"))
		if err != nil {
			det.Close()
			log.WithError(err).Error("Failed to start recording")
			return cli.Exit("", 1)
		}
		sinks.Add(rec)
	}

	var mon *monitor
	if cfg.MonitorAddr != "" {
		mon = newMonitor(logging.Component(logger, "server"))
		sinks.Add(mon.hub)
		loopCfg.Frames = mon.frames
	}

	var tr *tray.Tray
	if cfg.Tray {
		tr = tray.New(cfg.Target())
		sinks.Add(signal.SinkFunc(func(p signal.Pair) {
			tr.SetStatus(p.Width.Value, p.Height.Value)
		}))
	}

	if cfg.Show {
		loopCfg.Preview = preview.NewWindow(config.DefaultWindowTitle)
	}

	loop, err := app.New(loopCfg)
	if err != nil {
		det.Close()
		return err
	}

	if mon != nil {
		mon.serve(cfg.MonitorAddr, st, loop)
		defer mon.shutdown()
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tr == nil {
		err = loop.Run(ctx)
	} else {
		err = runWithTray(ctx, loop, tr)
	}
	if err != nil {
		log.WithError(err).Error("Frame loop failed")
		return cli.Exit("", 1)
	}
	return nil
}

// runWithTray runs the frame loop in the background and the tray on the calling goroutine.
func runWithTray(ctx context.Context, loop *app.App, tr *tray.Tray) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr.OnPause(loop.SetPaused)
	tr.OnQuit(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx)
		tr.Stop()
	}()

	tr.Run()
	cancel()
	return <-errCh
}

// monitor bundles the optional monitor server with the sink and frame buffer it reads from.
type monitor struct {
	log    *logrus.Entry
	hub    *server.Hub
	frames *server.FrameBuffer
	srv    *server.Server
}

func newMonitor(log *logrus.Entry) *monitor {
	return &monitor{
		log:    log,
		hub:    server.NewHub(log),
		frames: server.NewFrameBuffer(),
	}
}

// serve starts the HTTP server in the background.
func (m *monitor) serve(addr string, st *store.Store, loop *app.App) {
	m.srv = server.New(server.Config{
		Stats: func() server.Stats {
			s := loop.Stats()
			return server.Stats{Frames: s.Frames, Faces: s.Faces, Emitted: s.Emitted}
		},
		Store:  st,
		Hub:    m.hub,
		Frames: m.frames,
		Log:    m.log,
	})

	go func() {
		if err := m.srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.WithError(err).Error("Monitor server failed")
		}
	}()
}

func (m *monitor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.log.WithError(err).Warn("Monitor shutdown failed")
	}
}
