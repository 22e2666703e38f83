// Package main runs the encoder emulator on a serial link.
package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/gitsim/emulator/config"
	"github.com/gitsim/emulator/emulator"
	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/pins"
	"github.com/gitsim/emulator/serial"
	"github.com/gitsim/emulator/state"
	"github.com/gitsim/emulator/tick"
	"github.com/gitsim/emulator/utils"
)

var logger = logging.NewLogger("gitsim-emulator")

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,usage=emulator config file; built-in defaults when omitted"`
	Debug      bool   `flag:"debug,usage=enable debug logging"`
	Fake       bool   `flag:"fake,usage=drive in-memory pins instead of gpio"`
	ListPorts  bool   `flag:"list-ports,usage=list serial ports and exit"`
	Version    bool   `flag:"version,usage=print version and exit"`
}

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	if argsParsed.Version {
		version := config.Version
		if version == "" {
			version = "dev"
		}
		fmt.Printf("gitsim-emulator %s %s\n", version, config.GitRevision) //nolint:forbidigo
		return nil
	}

	if argsParsed.ListPorts {
		ports, err := serial.Search("")
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p) //nolint:forbidigo
		}
		return nil
	}

	cfg := config.Default()
	if argsParsed.ConfigFile != "" {
		var err error
		cfg, err = config.Read(argsParsed.ConfigFile)
		if err != nil {
			return err
		}
	}
	if argsParsed.Fake {
		cfg.Pins.Fake = true
	}

	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(cfg.Level())
	}
	if cfg.LogFile != nil {
		fileAppender := logging.NewFileAppender(cfg.LogFile.Path, cfg.LogFile.MaxSizeMB, cfg.LogFile.MaxBackups)
		logger.AddAppender(fileAppender)
		defer goutils.UncheckedErrorFunc(fileAppender.Close)
	}

	return runEmulator(ctx, cfg, logger)
}

func runEmulator(ctx context.Context, cfg *config.Config, logger logging.Logger) (err error) {
	opts, err := cfg.Serial.Options("serial")
	if err != nil {
		return err
	}

	var outputs [state.NumAxles]state.Output
	for i := range outputs {
		axle := config.AxlePins{A: fmt.Sprintf("axle%d_a", i+1), B: fmt.Sprintf("axle%d_b", i+1)}
		if i < len(cfg.Pins.Axles) {
			axle = cfg.Pins.Axles[i]
		}
		pair, err := pins.OpenPair(axle.A, axle.B, cfg.Pins.Fake, logger.Sublogger("pins"))
		if err != nil {
			return errors.Wrapf(err, "failed to open outputs of axle %d", i+1)
		}
		outputs[i] = pair
	}

	source, err := tick.NewClockSource(clock.New(), cfg.Tick.TickPeriod(), logger.Sublogger("tick"))
	if err != nil {
		return err
	}

	transport, err := serial.Open(cfg.Serial.Path, opts)
	if err != nil {
		return err
	}
	logger.Infow("serial port open", "path", cfg.Serial.Path, "baud_rate", opts.BaudRate)

	guard := utils.NewGuard(func() {
		if closeErr := transport.Close(); closeErr != nil {
			logger.Warnw("failed to close serial port", "error", closeErr)
		}
	})
	defer guard.OnFail()

	emu, err := emulator.New(cfg, transport, outputs, source, logger)
	if err != nil {
		return err
	}
	guard.Success()
	defer func() {
		err = multierr.Combine(err, emu.Close())
	}()

	if err := emu.Start(ctx); err != nil {
		return err
	}
	goutils.ContextMainReadyFunc(ctx)()

	select {
	case <-ctx.Done():
		return nil
	case <-emu.Done():
		return emu.Err()
	}
}
