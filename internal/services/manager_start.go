package services

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Start launches the metrics endpoint, the watcher file reloader, the change
// intake and the sweep scheduler. They run until Shutdown or until bgCtx is
// cancelled.
func (m *Manager) Start(bgCtx context.Context) error {
	ctx, cancel := context.WithCancel(bgCtx)
	m.cancel = cancel

	for _, srv := range m.servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			cancel()
			return err
		}
		m.wg.Add(1)
		go func(s *http.Server, ln net.Listener) {
			defer m.wg.Done()
			m.logger.Info("Metrics listening", "addr", ln.Addr().String())
			if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("Metrics server failed", "error", err)
			}
		}(srv, ln)
	}

	if m.fileWatch != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.fileWatch.Run(ctx); err != nil {
				m.logger.Error("Watcher file reloader stopped", "error", err)
			}
		}()
	}

	if m.intake != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.intake.Start(ctx); err != nil {
				m.logger.Error("Change intake stopped with error", "error", err)
			}
		}()
	}

	if m.opts.RunScheduler {
		if err := m.scheduler.Start(ctx); err != nil {
			cancel()
			return err
		}
	}
	return nil
}
