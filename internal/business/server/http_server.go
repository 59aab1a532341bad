package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/config"
	"github.com/openkcm/metadata-collector/internal/openapi"
)

// newRouter serves the generated OpenAPI routes. Set-Cookie is not part of
// the OpenAPI document, so the strict handlers set the session cookie on the
// response writer taken from the context.
func newRouter(cfg *config.Config, deps Dependencies) http.Handler {
	strictHandler := openapi.NewStrictHandlerWithOptions(
		newOpenAPIServer(deps),
		[]openapi.StrictMiddlewareFunc{
			newSessionMiddleware(deps.Sessions),
			newTraceMiddleware(cfg),
		},
		openapi.StrictHTTPServerOptions{
			RequestErrorHandlerFunc:  writeRequestError,
			ResponseErrorHandlerFunc: writeError,
		},
	)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(newMetricsMiddleware(cfg))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(responseWriterMiddleware)

	return openapi.HandlerWithOptions(strictHandler, openapi.ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: writeRequestError,
	})
}

// createHTTPServer creates an API http server using the given config
func createHTTPServer(_ context.Context, cfg *config.Config, deps Dependencies) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: newRouter(cfg, deps),
	}
}

// StartHTTPServer serves the collector routes until ctx is done and then
// shuts the server down gracefully.
func StartHTTPServer(ctx context.Context, cfg *config.Config, deps Dependencies) error {
	if err := initMeters(ctx, cfg); err != nil {
		return err
	}

	server := createHTTPServer(ctx, cfg, deps)

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Addresses in the form network://address select the network, e.g.
	// unix:///run/collector.sock. Anything else listens on tcp.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
