// Package config loads the digitpad YAML configuration.
//
// Example:
//
//	log:
//	  level: info
//	seed: 42
//	training:
//	  batch_size: 64
//	  num_batches: 150
//	data:
//	  source: mnist
//	  dir: ./mnist
//	  shuffle: true
//	canvas:
//	  normalize: false
//	  width: 280
//	  height: 280
//	  stroke_width: 20
//	  max_side: 4096
//	server:
//	  listen: ":8080"
//	  body_limit: 2M
//
// Keys left out keep their defaults. The network topology is fixed and has
// no keys.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/digitpad/internal/logging"
)

var ErrConfigNotFound = errors.New("config file is not found")
var ErrConfigInvalid = errors.New("config is invalid")

// Batch sources accepted by data.source.
const (
	SourceMNIST     = "mnist"
	SourceSynthetic = "synthetic"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Seed     *int64         `yaml:"seed,omitempty"` // nil: seeded from the clock
	Training TrainingConfig `yaml:"training"`
	Data     DataConfig     `yaml:"data"`
	Canvas   CanvasConfig   `yaml:"canvas"`
	Server   ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	// debug, info, warn, error or off
	Level string `yaml:"level"`
}

type TrainingConfig struct {
	BatchSize  int `yaml:"batch_size"`
	NumBatches int `yaml:"num_batches"`
}

type DataConfig struct {
	// mnist or synthetic
	Source string `yaml:"source"`

	// directory holding the MNIST IDX files (plain or .gz)
	Dir string `yaml:"dir"`

	Shuffle bool `yaml:"shuffle"`

	// keep at most this many examples; 0 keeps all
	MaxSamples int `yaml:"max_samples"`
}

type CanvasConfig struct {
	// divide preprocessed pixels by 255
	Normalize bool `yaml:"normalize"`

	// size of the drawing surface strokes are rendered on
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	StrokeWidth float64 `yaml:"stroke_width"`

	// largest image side the server draws or decodes
	MaxSide int `yaml:"max_side"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`

	// maximum request body, in echo's BodyLimit notation (e.g. "2M")
	BodyLimit string `yaml:"body_limit"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Training: TrainingConfig{
			BatchSize:  64,
			NumBatches: 150,
		},
		Data: DataConfig{
			Source:  SourceMNIST,
			Dir:     "./mnist",
			Shuffle: true,
		},
		Canvas: CanvasConfig{
			Width:       280,
			Height:      280,
			StrokeWidth: 20,
			MaxSide:     4096,
		},
		Server: ServerConfig{
			Listen:    ":8080",
			BodyLimit: "2M",
		},
	}
}

// Load reads and validates a config file.
func Load(filepath string) (Config, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w at %s", ErrConfigNotFound, filepath)
		}
		return Config{}, err
	}
	return Unmarshal(content)
}

// Unmarshal parses YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Unmarshal(conf []byte) (Config, error) {
	out := Default()
	dec := yaml.NewDecoder(bytes.NewReader(conf))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every value.
//
// # Return
//
// nil if it is valid. Otherwise, an ErrConfigInvalid error.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfigInvalid}, args...)...))
	}

	if !logging.ValidLevel(c.Log.Level) {
		invalid("log.level: unknown level %q", c.Log.Level)
	}
	if c.Training.BatchSize <= 0 {
		invalid("training.batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.NumBatches <= 0 {
		invalid("training.num_batches must be positive, got %d", c.Training.NumBatches)
	}
	switch c.Data.Source {
	case SourceMNIST:
		if c.Data.Dir == "" {
			invalid("data.dir is required for the mnist source")
		}
	case SourceSynthetic:
	default:
		invalid("data.source: unknown source %q (mnist or synthetic)", c.Data.Source)
	}
	if c.Data.MaxSamples < 0 {
		invalid("data.max_samples must not be negative, got %d", c.Data.MaxSamples)
	}
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		invalid("canvas size must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	}
	if c.Canvas.MaxSide < max(c.Canvas.Width, c.Canvas.Height, 1) {
		invalid(
			"canvas.max_side must be positive and cover the canvas size, got %d for %dx%d",
			c.Canvas.MaxSide, c.Canvas.Width, c.Canvas.Height,
		)
	}
	if c.Canvas.StrokeWidth <= 0 {
		invalid("canvas.stroke_width must be positive, got %v", c.Canvas.StrokeWidth)
	}
	if c.Server.Listen == "" {
		invalid("server.listen is required")
	}
	return errors.Join(errs...)
}
