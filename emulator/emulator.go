// Package emulator assembles the encoder emulator: shared state, protocol engine, response writer
// and tick scheduler over one transport.
package emulator

import (
	"context"
	"io"
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gitsim/emulator/config"
	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/protocol"
	"github.com/gitsim/emulator/scheduler"
	"github.com/gitsim/emulator/state"
	"github.com/gitsim/emulator/tick"
	"github.com/gitsim/emulator/utils"
)

// minStepLength is the shortest step a valid connection telegram can configure.
var minStepLength = float64(protocol.MinWheelDiameter) * math.Pi / (2 * float64(protocol.MaxPPR))

// Emulator owns every runtime component for the lifetime of the process.
type Emulator struct {
	transport io.ReadWriteCloser
	shared    *state.Shared
	stats     *protocol.Stats
	engine    *protocol.Engine
	writer    *protocol.Writer
	sched     *scheduler.Scheduler
	logger    logging.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	workers utils.StoppableWorkers
	done    chan struct{}
	err     error

	closeOnce sync.Once
	closeErr  error
}

// Stats is a snapshot of emulator activity.
type Stats struct {
	Protocol  protocol.StatsSnapshot `json:"protocol"`
	Scheduler scheduler.Stats        `json:"scheduler"`
}

// New builds an emulator reading telegrams from and writing responses to transport, driving
// outputs on every tick of source. Outputs are driven low before New returns.
func New(
	cfg *config.Config,
	transport io.ReadWriteCloser,
	outputs [state.NumAxles]state.Output,
	source tick.Source,
	logger logging.Logger,
) (*Emulator, error) {
	period := source.Period()
	if limit := tick.MaxAliasFreePeriod(minStepLength); period > limit {
		logger.Warnw("tick period is too long for full speed, positions may alias",
			"period", period, "max_alias_free_period", limit)
	}

	shared := state.New(outputs)
	var err error
	shared.Do(func(v *state.View) {
		err = v.OutputsLow()
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize outputs")
	}

	stats := &protocol.Stats{}
	writer := protocol.NewWriter(transport, cfg.QueueDepth, stats, logger.Sublogger("writer"))
	guard := utils.NewGuard(writer.Close)
	defer guard.OnFail()

	engine := protocol.NewEngine(transport, shared, writer, cfg.Format(), stats, logger.Sublogger("protocol"))
	sched, err := scheduler.New(shared, engine, source, cfg.SlowPeriod, logger.Sublogger("scheduler"))
	if err != nil {
		return nil, err
	}

	guard.Success()
	return &Emulator{
		transport: transport,
		shared:    shared,
		stats:     stats,
		engine:    engine,
		writer:    writer,
		sched:     sched,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Start starts the tick source and the telegram read loop. The read loop ends when the emulator is
// closed or the transport fails, and Done is closed then. A pending read does not observe ctx;
// Close unblocks it by closing the transport.
func (e *Emulator) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("emulator already started")
	}

	if err := e.sched.Start(); err != nil {
		return errors.Wrap(err, "failed to start tick source")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.workers = utils.NewStoppableWorkersWithContext(runCtx, e.readLoop)
	e.started = true
	e.logger.Infow("emulator started", "slow_period_ticks", e.sched.SlowPeriodTicks())
	return nil
}

func (e *Emulator) readLoop(ctx context.Context) {
	defer close(e.done)
	err := e.engine.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		e.logger.Info("transport closed by peer")
	default:
		e.logger.Errorw("telegram read loop stopped", "error", err)
	}
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// Done is closed when the read loop has ended.
func (e *Emulator) Done() <-chan struct{} {
	return e.done
}

// Err returns why the read loop ended. It is nil while running and after a clean shutdown.
func (e *Emulator) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Stats returns the current counters.
func (e *Emulator) Stats() Stats {
	return Stats{
		Protocol:  e.stats.Snapshot(),
		Scheduler: e.sched.Stats(),
	}
}

// Close stops ticking, closes the transport to unblock the read loop, stops every worker and
// drives the outputs low. It is safe to call more than once.
func (e *Emulator) Close() error {
	e.closeOnce.Do(func() {
		e.sched.Stop()

		e.mu.Lock()
		cancel, workers, started := e.cancel, e.workers, e.started
		e.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		err := e.transport.Close()
		if workers != nil {
			workers.Stop()
		}
		if !started {
			close(e.done)
		}
		e.writer.Close()

		e.shared.Do(func(v *state.View) {
			v.SetConnected(false)
			err = multierr.Combine(err, v.OutputsLow())
		})
		e.closeErr = err
		e.logger.Infow("emulator stopped", "stats", e.Stats())
	})
	return e.closeErr
}
