package economy

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Flusher periodically drains the save queue. Stopping it only prevents
// future cycles; a cycle already running finishes first.
type Flusher struct {
	interval time.Duration
	drain    func(context.Context) int
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func newFlusher(interval time.Duration, drain func(context.Context) int, logger *slog.Logger) *Flusher {
	return &Flusher{interval: interval, drain: drain, logger: logger, done: make(chan struct{})}
}

func (f *Flusher) start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.run(ctx)
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A cycle is not aborted by Stop.
			if n := f.drain(context.WithoutCancel(ctx)); n > 0 {
				f.logger.Debug("save queue drained", slog.Int("saved", n))
			}
		}
	}
}

// Stop cancels scheduling and waits for an in-progress cycle to finish.
func (f *Flusher) Stop() {
	f.cancel()
	<-f.done
}

// wait blocks until the worker has exited or ctx expires. The running cycle
// is left to finish on its own in the latter case.
func (f *Flusher) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartFlusher starts the periodic save worker. A running worker is stopped
// first so the interval can be reconfigured. A non-positive interval only
// stops the current worker.
func (s *Service) StartFlusher(interval time.Duration) {
	s.flusherMu.Lock()
	defer s.flusherMu.Unlock()

	if s.flusher != nil {
		s.flusher.Stop()
		s.flusher = nil
	}
	if interval <= 0 {
		s.logger.Info("periodic save disabled")
		return
	}
	s.flusher = newFlusher(interval, s.drainQueue, s.logger)
	s.flusher.start()
	s.logger.Info("periodic save started", slog.Duration("interval", interval))
}

// StopFlusher stops the periodic save worker, if any.
func (s *Service) StopFlusher() {
	s.flusherMu.Lock()
	defer s.flusherMu.Unlock()
	if s.flusher != nil {
		s.flusher.Stop()
		s.flusher = nil
	}
}

// drainQueue flushes at most the number of entities queued when the cycle
// starts. Entities enqueued during the cycle wait for the next one.
func (s *Service) drainQueue(ctx context.Context) int {
	n := s.queue.Len()
	saved := 0
	for i := 0; i < n; i++ {
		id, ok := s.queue.DequeueOne()
		if !ok {
			break
		}
		ok, err := s.Save(ctx, id)
		if err != nil {
			s.logger.Warn("periodic save failed", slog.Uint64("entity_id", id), slog.Any("error", err))
			continue
		}
		if ok {
			saved++
		}
	}
	s.metrics.QueueDepth(s.queue.Len())
	return saved
}

// Shutdown stops the flusher and gives a final flush of all resident entities
// until ctx expires. Waiting for a periodic cycle already in progress counts
// against the same bound. Entities not flushed by then are not persisted.
func (s *Service) Shutdown(ctx context.Context) error {
	s.flusherMu.Lock()
	f := s.flusher
	s.flusher = nil
	s.flusherMu.Unlock()

	if f != nil {
		f.cancel()
		if err := f.wait(ctx); err != nil {
			s.logger.Warn("periodic save still running at shutdown", slog.Any("error", err))
			return fmt.Errorf("final flush: %w", err)
		}
	}

	saved := s.FlushAllResident(ctx)
	if err := ctx.Err(); err != nil {
		s.logger.Warn("final flush cut short", slog.Int("saved", saved), slog.Any("error", err))
		return fmt.Errorf("final flush: %w", err)
	}
	s.logger.Info("final flush complete", slog.Int("saved", saved))
	return nil
}
