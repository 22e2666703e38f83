package protocol

import (
	"bufio"
	"context"
	"io"

	"github.com/gitsim/emulator/logging"
	"github.com/gitsim/emulator/utils"
)

// DefaultQueueDepth is the number of responses a Writer buffers before dropping.
const DefaultQueueDepth = 16

// Writer sends response frames to the transport from a background worker, so the tick handler
// never blocks on I/O.
type Writer struct {
	underlying io.Writer
	w          *bufio.Writer
	queue      chan Frame
	stats      *Stats
	logger     logging.Logger

	workers utils.StoppableWorkers
}

// NewWriter starts a writer over w holding up to depth pending frames.
func NewWriter(w io.Writer, depth int, stats *Stats, logger logging.Logger) *Writer {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	wr := &Writer{
		underlying: w,
		w:          bufio.NewWriterSize(w, ResponseSize*depth),
		queue:      make(chan Frame, depth),
		stats:      stats,
		logger:     logger,
	}
	wr.workers = utils.NewStoppableWorkers(wr.drain)
	return wr
}

// Enqueue queues f for writing without blocking. It reports false when the queue is full and the
// frame was dropped.
func (wr *Writer) Enqueue(f Frame) bool {
	select {
	case wr.queue <- f:
		wr.stats.ResponsesQueued.Inc()
		return true
	default:
		wr.stats.ResponsesDropped.Inc()
		return false
	}
}

func (wr *Writer) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-wr.queue:
			wr.write(&f)
		}
	}
}

func (wr *Writer) write(f *Frame) {
	if _, err := wr.w.Write(f.Bytes()); err != nil {
		wr.fail(err)
		return
	}
	if err := wr.w.Flush(); err != nil {
		wr.fail(err)
		return
	}
	wr.stats.ResponsesSent.Inc()
}

func (wr *Writer) fail(err error) {
	wr.stats.WriteErrors.Inc()
	wr.logger.Warnw("failed to write response", "error", err)
	// A failed bufio.Writer keeps returning the same error; start over for the next frame.
	wr.w.Reset(wr.underlying)
}

// Close stops the background worker. Frames still queued are discarded.
func (wr *Writer) Close() {
	wr.workers.Stop()
}
