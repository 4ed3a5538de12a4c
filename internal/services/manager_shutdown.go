package services

import (
	"context"
	"errors"
)

// Shutdown stops the scheduler, waits for background tasks, then closes the
// broker and the stores. It is safe to call after a failed Init.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if m.scheduler != nil {
		if err := m.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	for _, srv := range m.servers {
		if err := srv.Shutdown(ctx); err != nil {
			m.logger.Error("Error shutting down metrics server", "error", err)
			errs = append(errs, err)
		}
	}

	if m.cancel != nil {
		m.cancel()
	}

	m.logger.Info("Waiting for background tasks to finish...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("Background tasks finished")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
		errs = append(errs, ctx.Err())
	}

	if m.fileWatch != nil {
		_ = m.fileWatch.Close()
	}

	if m.broker != nil {
		if err := m.broker.Close(); err != nil {
			m.logger.Error("Error closing pubsub provider", "error", err)
			errs = append(errs, err)
		}
	}

	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](ctx); err != nil {
			m.logger.Error("Error closing store", "error", err)
			errs = append(errs, err)
		}
	}
	m.closers = nil

	return errors.Join(errs...)
}
