// Package config holds the runtime settings of the mouth-to-OSC bridge.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable the CLI reads.
const EnvPrefix = "MOUTHOSC_"

// Default values.
const (
	DefaultIP          = "127.0.0.1"
	DefaultPort        = 8338
	DefaultCamera      = 0
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultDetection   = 0.5
	DefaultTracking    = 0.5
	DefaultWindowTitle = "MediaPipe FaceMesh -> OSC"
)

// Config holds every setting of a run.
type Config struct {
	// OSC destination.
	IP   string `validate:"required,hostname|ip"`
	Port int    `validate:"min=1,max=65535"`

	// Capture.
	Camera int `validate:"min=0"`
	Width  int `validate:"min=1"`
	Height int `validate:"min=1"`
	Flip   bool

	// Preview; Show=false runs headless.
	Show bool

	// Detector thresholds.
	Detection float64 `validate:"gte=0,lte=1"`
	Tracking  float64 `validate:"gte=0,lte=1"`
	// Refine enables iris landmarks; the mouth metrics do not need them.
	Refine bool
	// ServiceScript overrides the FaceMesh service lookup.
	ServiceScript string
	// Python overrides the interpreter lookup.
	Python string

	// Optional extras.
	RecordPath  string
	MonitorAddr string `validate:"omitempty,hostname_port"`
	Tray        bool

	// Logging.
	Debug   bool
	LogFile string
}

// Default returns a Config with the defaults of the original tool.
func Default() Config {
	return Config{
		IP:        DefaultIP,
		Port:      DefaultPort,
		Camera:    DefaultCamera,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Show:      true,
		Detection: DefaultDetection,
		Tracking:  DefaultTracking,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateConfig, Config{})
	return v
}

// validateConfig checks rules that span several fields.
// The tray and the preview window both need the GUI main thread, so only one may run.
func validateConfig(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Tray && c.Show {
		sl.ReportError(c.Tray, "Tray", "Tray", "excluded_with_show", "")
	}
}

// Validate checks field constraints and returns a readable error.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Target returns the OSC destination as host:port.
func (c Config) Target() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// EnvVar returns the environment variable bound to a flag name.
func EnvVar(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
