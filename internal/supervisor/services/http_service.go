// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tomtom215/vibebackup/internal/logging"
)

// defaultShutdownTimeout bounds graceful shutdown when none is configured
const defaultShutdownTimeout = 10 * time.Second

// HTTPServer is the part of *http.Server the status service drives.
//
// The service binds the listener itself so that bind errors surface from
// Serve and the resolved address (":0" becomes a real port) is known.
//
// Satisfied by *http.Server from net/http:
//   - Serve(l net.Listener) error
//   - Shutdown(ctx context.Context) error
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the status server as a supervised service.
//
// It translates http.Server's blocking Serve into suture's context-aware
// Serve:
//
//  1. Binds a TCP listener on addr
//  2. Serves on it in a goroutine
//  3. Waits for context cancellation or a server error
//  4. On cancellation, drains in-flight requests within shutdownTimeout
//
// Each call to Serve binds a fresh listener, so suture can restart the
// service after a failure.
//
// Example usage:
//
//	router := services.NewStatusRouter(status, services.RouterConfig{})
//	server := services.NewStatusHTTPServer("127.0.0.1:9847", router)
//	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, 10*time.Second))
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	onListen        func(net.Addr)
	name            string
}

// HTTPServiceOption customises an HTTPServerService
type HTTPServiceOption func(*HTTPServerService)

// WithListenNotify registers fn to be called with the bound address each
// time the service starts listening.
func WithListenNotify(fn func(net.Addr)) HTTPServiceOption {
	return func(h *HTTPServerService) { h.onListen = fn }
}

// NewHTTPServerService wraps server, which will listen on addr.
//
// The shutdownTimeout determines how long in-flight requests may run once
// shutdown starts. A non-positive value means 10s.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration, opts ...HTTPServiceOption) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	h := &HTTPServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		name:            "status-server",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewStatusHTTPServer builds the *http.Server for the status endpoints.
// Every endpoint is small and read-only, so the timeouts are short.
func NewStatusHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve implements suture.Service.
//
// Returns ctx.Err() after a graceful shutdown, or an error if binding,
// serving or shutdown fails. http.ErrServerClosed is expected on shutdown
// and is not reported.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("status server failed to listen on %s: %w", h.addr, err)
	}

	logging.Ctx(ctx).Info().Str("addr", ln.Addr().String()).Msg("Status server listening")
	if h.onListen != nil {
		h.onListen(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		// Serve closes ln when it returns
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is already canceled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's log messages.
func (h *HTTPServerService) String() string {
	return h.name
}
