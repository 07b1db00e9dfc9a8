package llmcall

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RecorderConfig configures the asynchronous call recorder.
type RecorderConfig struct {
	Store         *Store
	BatchSize     int           // Flush after N calls (default: 32)
	FlushInterval time.Duration // Or after duration (default: 2s)
	QueueSize     int           // Buffer size (default: 1024)
	Logger        *slog.Logger
}

// Recorder handles fire-and-forget call recording. Calls are queued on a
// buffered channel and written to the store in batches by one goroutine.
// A nil Recorder accepts and discards every call.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan *Call
	flushCh chan chan struct{}
	done    chan struct{}

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewRecorder creates a recorder and starts its writer goroutine.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Recorder{
		store:         cfg.Store,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan *Call, cfg.QueueSize),
		flushCh:       make(chan chan struct{}),
		done:          make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues a call asynchronously. It never blocks the caller: when the
// queue is full the call is dropped with a warning.
func (r *Recorder) Record(call *Call) {
	if r == nil || call == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("recorder closed, dropping llm call", "endpoint", call.Endpoint, "id", call.ID)
		return
	}

	select {
	case r.queue <- call:
	default:
		r.logger.Warn("recorder queue full, dropping llm call", "endpoint", call.Endpoint, "id", call.ID)
	}
}

// Flush blocks until every call queued before it has been written, or ctx ends.
func (r *Recorder) Flush(ctx context.Context) error {
	if r == nil {
		return nil
	}
	ack := make(chan struct{})
	select {
	case r.flushCh <- ack:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting calls, writes everything still queued and waits for
// the writer goroutine to exit. Safe to call more than once.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		<-r.done
		r.logger.Debug("llm call recorder stopped")
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*Call, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.write(batch)
		batch = make([]*Call, 0, r.batchSize)
	}

	for {
		select {
		case call, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, call)
			if len(batch) >= r.batchSize {
				flush()
			}

		case ack := <-r.flushCh:
			// Drain whatever is already buffered so Flush covers it.
		drain:
			for {
				select {
				case call, ok := <-r.queue:
					if !ok {
						break drain
					}
					batch = append(batch, call)
				default:
					break drain
				}
			}
			flush()
			close(ack)

		case <-ticker.C:
			flush()
		}
	}
}

func (r *Recorder) write(batch []*Call) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.logger.Debug("writing llm calls", "count", len(batch))
	if err := r.store.InsertBatch(ctx, batch); err != nil {
		r.logger.Error("failed to record llm calls", "count", len(batch), "error", err)
	}
}
