// Package config defines the emulator configuration file and how it is read and validated.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/protocol"
	"github.com/gitsim/emulator/scheduler"
	"github.com/gitsim/emulator/serial"
	"github.com/gitsim/emulator/state"
	"github.com/gitsim/emulator/tick"
)

// Versioning variables which are replaced by LD flags.
var (
	Version     = ""
	GitRevision = ""
)

// Config is the whole emulator configuration.
type Config struct {
	Serial         Serial        `json:"serial"`
	Tick           Tick          `json:"tick"`
	SlowPeriod     time.Duration `json:"slow_period"`
	Pins           Pins          `json:"pins"`
	ResponseFormat string        `json:"response_format"`
	QueueDepth     int           `json:"response_queue_depth"`
	LogLevel       string        `json:"log_level"`
	LogFile        *LogFile      `json:"log_file,omitempty"`
}

// Serial configures the link to the controlling application.
type Serial struct {
	Path          string  `json:"path"`
	BaudRate      int     `json:"baud_rate"`
	DataBits      int     `json:"data_bits"`
	StopBits      float64 `json:"stop_bits"`
	Parity        string  `json:"parity"`
	ReadTimeoutMS int     `json:"read_timeout_ms"`
}

// Tick configures the emulation tick. A non-zero Period overrides the timer settings.
type Tick struct {
	tick.TimerConfig `json:",squash"`
	Period           time.Duration `json:"period"`
}

// Pins names the two output lines of each axle.
type Pins struct {
	Fake  bool       `json:"fake"`
	Axles []AxlePins `json:"axles"`
}

// AxlePins names the channel A and channel B lines of one axle.
type AxlePins struct {
	A string `json:"a"`
	B string `json:"b"`
}

// LogFile configures an additional rotating log file.
type LogFile struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultAxles returns the reference output lines of both axles.
func DefaultAxles() []AxlePins {
	return []AxlePins{
		{A: "GPIO17", B: "GPIO27"},
		{A: "GPIO22", B: "GPIO23"},
	}
}

// Default returns the reference configuration.
func Default() *Config {
	opts := serial.DefaultOptions()
	return &Config{
		Serial: Serial{
			Path:     "/dev/ttyPS0",
			BaudRate: opts.BaudRate,
			DataBits: opts.DataBits,
			StopBits: 1,
			Parity:   "none",
		},
		Tick:           Tick{TimerConfig: tick.DefaultTimerConfig()},
		SlowPeriod:     scheduler.DefaultSlowPeriod,
		Pins:           Pins{Axles: DefaultAxles()},
		ResponseFormat: protocol.FormatTrailer.String(),
		QueueDepth:     protocol.DefaultQueueDepth,
		LogLevel:       logging.INFO.String(),
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if err := c.Serial.Validate(join(path, "serial")); err != nil {
		return err
	}
	if err := c.Tick.Validate(join(path, "tick")); err != nil {
		return err
	}
	if c.SlowPeriod < 0 {
		return utils.NewConfigValidationError(path, errors.New("slow_period must not be negative"))
	}
	if err := c.Pins.Validate(join(path, "pins")); err != nil {
		return err
	}
	if _, err := protocol.FormatFromString(c.ResponseFormat); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if c.QueueDepth < 0 {
		return utils.NewConfigValidationError(path, errors.New("response_queue_depth must not be negative"))
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if c.LogFile != nil && c.LogFile.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(join(path, "log_file"), "path")
	}
	return nil
}

// Format returns the parsed response format.
func (c *Config) Format() protocol.Format {
	f, err := protocol.FormatFromString(c.ResponseFormat)
	if err != nil {
		return protocol.FormatTrailer
	}
	return f
}

// Level returns the parsed log level.
func (c *Config) Level() logging.Level {
	l, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return l
}

// Validate ensures all parts of the config are valid.
func (s *Serial) Validate(path string) error {
	if s.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	_, err := s.Options(path)
	return err
}

// Options converts the config to serial.Options.
func (s *Serial) Options(path string) (serial.Options, error) {
	opts := serial.Options{
		BaudRate:    s.BaudRate,
		DataBits:    s.DataBits,
		ReadTimeout: s.ReadTimeoutMS,
	}
	switch s.StopBits {
	case 0, 1:
		opts.StopBits = serial.OneStopBit
	case 1.5:
		opts.StopBits = serial.OnePointFiveStopBits
	case 2:
		opts.StopBits = serial.TwoStopBits
	default:
		return serial.Options{}, utils.NewConfigValidationError(path, errors.Errorf("unsupported stop_bits %v", s.StopBits))
	}
	parity := s.Parity
	if parity == "" {
		parity = "none"
	}
	p, err := serial.ParityFromString(parity)
	if err != nil {
		return serial.Options{}, utils.NewConfigValidationError(path, err)
	}
	opts.Parity = p
	if err := opts.Validate(path); err != nil {
		return serial.Options{}, err
	}
	return opts, nil
}

// Validate ensures all parts of the config are valid.
func (t *Tick) Validate(path string) error {
	if t.Period < 0 {
		return utils.NewConfigValidationError(path, errors.New("period must not be negative"))
	}
	if t.Period > 0 {
		return nil
	}
	return t.TimerConfig.Validate(path)
}

// TickPeriod returns the configured tick period.
func (t *Tick) TickPeriod() time.Duration {
	if t.Period > 0 {
		return t.Period
	}
	return t.TimerConfig.Period()
}

// Validate ensures all parts of the config are valid.
func (p *Pins) Validate(path string) error {
	if p.Fake {
		return nil
	}
	if len(p.Axles) != state.NumAxles {
		return utils.NewConfigValidationError(path, errors.Errorf("expected %d axles, got %d", state.NumAxles, len(p.Axles)))
	}
	for i, axle := range p.Axles {
		axlePath := fmt.Sprintf("%s.axles.%d", path, i)
		if axle.A == "" {
			return utils.NewConfigValidationFieldRequiredError(axlePath, "a")
		}
		if axle.B == "" {
			return utils.NewConfigValidationFieldRequiredError(axlePath, "b")
		}
	}
	return nil
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
