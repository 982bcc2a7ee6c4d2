package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Domenick1991/skymiles/api"
	"github.com/Domenick1991/skymiles/config"
	"github.com/Domenick1991/skymiles/internal/balance"
	"github.com/Domenick1991/skymiles/internal/balance/balancerpc"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"github.com/Domenick1991/skymiles/internal/service/award"
	"github.com/Domenick1991/skymiles/internal/service/flights"
	"github.com/Domenick1991/skymiles/internal/service/reservation"
	"github.com/Domenick1991/skymiles/internal/service/settlement"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	shutdownTimeout = 5 * time.Second
	swaggerFile     = "skymiles.swagger.json"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// App bundles everything the booking HTTP API serves.
type App struct {
	Flights      flights.FlightUseCase
	Reservations reservation.ReservationUseCase
	Settlements  settlement.SettlementUseCase
	Awards       award.AwardUseCase
	Metrics      *metrics.Metrics
	Checks       map[string]HealthCheck
}

// NewRouter builds the gin engine for the booking API.
func NewRouter(cfg config.HTTPConfig, app App) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if app.Metrics != nil {
		router.Use(app.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	}
	router.GET("/healthz", healthz(app.Checks))

	v1 := router.Group("/v1")
	api.NewBookingHandler(app.Reservations, app.Settlements).Register(v1)
	api.NewFlightHandler(app.Flights).Register(v1.Group("/flights"))
	api.NewAwardHandler(app.Awards).Register(v1)

	if cfg.SwaggerDir != "" {
		router.StaticFile("/docs/"+swaggerFile, filepath.Join(cfg.SwaggerDir, swaggerFile))
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/docs/"+swaggerFile))))
	}
	return router
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": report})
	}
}

// Run serves the booking API and blocks until ctx is canceled or the server fails.
func Run(ctx context.Context, cfg *config.Config, app App) error {
	gin.SetMode(gin.ReleaseMode)
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           NewRouter(cfg.HTTP, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- serveHTTP(httpSrv) }()
	slog.Info("booking api listening", "address", cfg.HTTP.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

// RunBalance starts the balance gRPC server and its REST gateway and blocks until ctx is
// canceled or a server fails.
func RunBalance(ctx context.Context, cfg *config.Config, svc balance.UseCase, logger *slog.Logger) error {
	grpcSrv := balancerpc.NewGRPCServer(svc, logger)
	gateway, err := balancerpc.NewGateway(balancerpc.NewServer(svc))
	if err != nil {
		return fmt.Errorf("build balance gateway: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Balance.GatewayAddress,
		Handler:           gateway,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- grpcSrv.Serve(lis) }()
	go func() { errCh <- serveHTTP(httpSrv) }()
	logger.Info("balance service listening", "grpc", cfg.GRPC.Address, "gateway", cfg.Balance.GatewayAddress)

	select {
	case err := <-errCh:
		grpcSrv.Stop()
		_ = httpSrv.Close()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown gateway: %w", err)
		}
		return nil
	}
}

func serveHTTP(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http %s: %w", srv.Addr, err)
	}
	return nil
}
