package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
)

const serviceName = "authd"

// app owns everything run starts and must tear down.
type app struct {
	server   *http.Server
	engine   *authcore.Engine
	backend  *backend
	exporter *otelexport.Exporter
	shutdown func(context.Context) error
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger, shutdown: func(context.Context) error { return nil }}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	tel, err := setupTelemetry(ctx, cfg.OTelEndpoint, serviceName)
	if err != nil {
		return nil, err
	}
	a.shutdown = tel.shutdown

	a.backend, err = openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := authcore.New().
		WithConfig(cfg.engineConfig()).
		WithStore(a.backend.store).
		WithLogger(logger).
		WithTracerProvider(tel.tracer)
	if a.backend.redis != nil {
		b = b.WithRedis(a.backend.redis)
	}
	if cfg.AuditLog {
		b = b.WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))
	}
	a.engine, err = b.Build()
	if err != nil {
		return nil, err
	}

	a.exporter, err = otelexport.New(tel.meter.Meter(serviceName), a.engine)
	if err != nil {
		return nil, err
	}

	if cfg.production() {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := httpapi.New(a.engine,
		httpapi.WithLogger(logger),
		httpapi.WithIPRateLimiter(httpapi.NewIPRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)),
	)
	router := handler.Router()
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promexport.New(a.engine).Handler()))

	a.server = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// serve blocks until ctx is done or the listener fails, then drains.
func (a *app) serve(ctx context.Context, wait time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return a.close(shutdownCtx)
}

func (a *app) close(ctx context.Context) error {
	// Flush telemetry while the metrics callback is still registered.
	errs := []error{a.shutdown(ctx)}
	if a.exporter != nil {
		errs = append(errs, a.exporter.Close())
	}
	if a.engine != nil {
		errs = append(errs, a.engine.Close(ctx))
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	return errors.Join(errs...)
}
