package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ServiceScript is the file name of the Python FaceMesh service.
const ServiceScript = "facemesh_service.py"

// readyTimeout bounds how long the service may take to import MediaPipe and build the mesh.
const readyTimeout = 30 * time.Second

// ErrServiceNotFound is returned when the FaceMesh service script cannot be located.
var ErrServiceNotFound = errors.New(ServiceScript + " not found")

// MediaPipeDetector implements Detector using a Python MediaPipe FaceMesh subprocess.
//
// Wire format: each request is a 4-byte big-endian length followed by a JPEG
// frame on stdin; each response is one JSON line on stdout.
type MediaPipeDetector struct {
	config Config
	log    *logrus.Entry
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *io.PipeWriter
	mu     sync.Mutex
	closed bool
}

// NewMediaPipeDetector starts the FaceMesh service and waits until it reports ready.
// A missing script, missing interpreter or a service that fails to import
// MediaPipe is reported here, before any frame is processed.
func NewMediaPipeDetector(config Config, log *logrus.Entry) (*MediaPipeDetector, error) {
	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findServiceScript()
	}
	if scriptPath == "" {
		return nil, ErrServiceNotFound
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, err)
	}

	pythonPath := config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d := &MediaPipeDetector{
		config: config,
		log:    log,
	}
	if err := d.start(pythonPath, scriptPath); err != nil {
		return nil, err
	}
	return d, nil
}

// Detect sends a frame to the service and returns the first detected face, or nil.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (*FaceLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector closed")
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := writeFrame(d.stdin, buf.GetBytes()); err != nil {
		return nil, err
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseResponse(line)
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	// Closing stdin makes the service exit its read loop.
	d.stdin.Close()
	err := d.cmd.Wait()
	d.stderr.Close()
	return err
}

func (d *MediaPipeDetector) start(pythonPath, scriptPath string) error {
	args := []string{
		scriptPath,
		"--max-faces", strconv.Itoa(max(1, d.config.MaxFaces)),
		"--detection", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--tracking", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	}
	if d.config.RefineLandmarks {
		args = append(args, "--refine")
	}

	d.cmd = exec.Command(pythonPath, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Service diagnostics go to the debug log.
	d.stderr = d.log.WriterLevel(logrus.DebugLevel)
	d.cmd.Stderr = d.stderr

	if err := d.cmd.Start(); err != nil {
		d.stderr.Close()
		return fmt.Errorf("start facemesh service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)

	if err := d.awaitReady(); err != nil {
		d.stdin.Close()
		d.cmd.Process.Kill()
		d.cmd.Wait()
		d.stderr.Close()
		return err
	}

	d.log.WithFields(logrus.Fields{
		"python": pythonPath,
		"script": scriptPath,
		"pid":    d.cmd.Process.Pid,
	}).Info("FaceMesh service ready")
	return nil
}

// awaitReady reads the service's startup line.
func (d *MediaPipeDetector) awaitReady() error {
	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := d.stdout.ReadBytes('\n')
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("facemesh service exited during startup: %w", r.err)
		}
		var status struct {
			Ready bool   `json:"ready"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(r.line, &status); err != nil {
			return fmt.Errorf("parse startup status: %w", err)
		}
		if !status.Ready {
			return fmt.Errorf("facemesh service not ready: %s", status.Error)
		}
		return nil
	case <-time.After(readyTimeout):
		return fmt.Errorf("facemesh service not ready after %s", readyTimeout)
	}
}

// writeFrame writes a length-prefixed payload.
func writeFrame(w io.Writer, data []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// jsonFace represents the JSON structure from the Python service.
type jsonFace struct {
	Points []Point3D `json:"points"`
	Score  float64   `json:"score"`
}

// parseResponse decodes one service response line. Faces beyond the first are ignored.
func parseResponse(line []byte) (*FaceLandmarks, error) {
	var response struct {
		Faces []jsonFace `json:"faces"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("facemesh service: %s", response.Error)
	}
	if len(response.Faces) == 0 {
		return nil, nil
	}

	face := response.Faces[0]
	return &FaceLandmarks{
		Points: face.Points,
		Score:  face.Score,
	}, nil
}

func findServiceScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ServiceScript),
		filepath.Join("..", "scripts", ServiceScript),
		filepath.Join(execDir, "scripts", ServiceScript),
		filepath.Join(os.Getenv("HOME"), ".mouthosc", "scripts", ServiceScript),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".mouthosc/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
