// dephealth.go wires topologymetrics dependency monitoring.
//
// Monitored dependencies:
//   - PostgreSQL: SQL checker over the existing pgxpool (pool mode, critical)
//   - Supabase Storage: HTTP checker, only when uploads are configured (non-critical)
//
// Metrics are exported on /metrics next to the other Prometheus metrics
// (app_dependency_health, app_dependency_latency_seconds, app_dependency_status).
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig describes what to monitor.
type DephealthConfig struct {
	// Graph vertex name of this service
	ServiceID string
	Group     string
	// *sql.DB adapter over the pgxpool (stdlib.OpenDBFromPool)
	DB *sql.DB
	// Used for metric labels only
	PostgresURL string
	// Empty when object storage is not configured
	StorageHealthURL string
	CheckInterval    time.Duration
}

// DephealthService monitors dependencies through topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService registers metrics in the default Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer uses registerer instead of the default
// registry, which keeps tests isolated.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// Pool mode reflects pool exhaustion as well as server reachability.
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
	}

	if cfg.StorageHealthURL != "" {
		storageOpts := []dephealth.DependencyOption{
			dephealth.FromURL(cfg.StorageHealthURL),
			dephealth.WithHTTPHealthPath(healthPath(cfg.StorageHealthURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			// Lending keeps working without storage; only uploads fail.
			dephealth.Critical(false),
		}
		if parsed, err := url.Parse(cfg.StorageHealthURL); err == nil && parsed.Scheme == "https" {
			storageOpts = append(storageOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		opts = append(opts, dephealth.HTTP("supabase-storage", storageOpts...))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// healthPath extracts the path probed by the HTTP checker.
func healthPath(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Start begins periodic checks.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Dependency monitoring started")
	return ds.dh.Start(ctx)
}

// Stop ends periodic checks.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Dependency monitoring stopped")
}

// Health maps dependency names to their last check result.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
