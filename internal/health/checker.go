// Package health probes the ledger store in the background and publishes the
// result through the standard gRPC health service and an HTTP status view.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the ledger.
const ServiceName = "genledger.v1.Ledger"

// Status values reported by Checker.Status.
const (
	StatusServing    = "serving"
	StatusNotServing = "not_serving"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Prober is the part of ledger.Store the checker exercises.
type Prober interface {
	Len(ctx context.Context) (int, error)
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool, entries int)

// Snapshot is the result of the most recent probe.
type Snapshot struct {
	Status              string    `json:"status"`
	Entries             int       `json:"ledger_entries"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastCheck           time.Time `json:"last_check,omitzero"`
}

// Checker runs periodic ledger probes.
type Checker struct {
	store     Prober
	grpc      *grpchealth.Server
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu       sync.Mutex
	failures int
	snap     Snapshot
}

// New creates a new Checker. The ledger is reported as serving until a
// probe says otherwise.
func New(store Prober, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	c := &Checker{
		store:  store,
		grpc:   grpchealth.NewServer(),
		cfg:    cfg,
		logger: logger,
		snap:   Snapshot{Status: StatusServing},
	}
	c.setServing(grpc_health_v1.HealthCheckResponse_SERVING)
	return c
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// GRPCServer returns the gRPC health service fed by this checker.
func (c *Checker) GRPCServer() *grpchealth.Server {
	return c.grpc
}

// Start runs the probe loop until ctx is done, then marks every service as
// not serving.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ticker.C:
			c.Check(ctx)
		case <-ctx.Done():
			c.grpc.Shutdown()
			return
		}
	}
}

// Check probes the store once and reports whether it answered.
func (c *Checker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	n, err := c.store.Len(ctx)
	success := err == nil

	if c.onMetrics != nil {
		c.onMetrics(success, n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.snap.Status
	c.snap.LastCheck = time.Now().UTC()
	if success {
		c.failures = 0
		c.snap.Entries = n
		c.snap.Status = StatusServing
	} else {
		c.failures++
		c.logger.Warn("health: ledger probe failed", zap.Int("fail_count", c.failures), zap.Error(err))
		if c.failures >= c.cfg.FailThreshold {
			c.snap.Status = StatusNotServing
		}
	}
	c.snap.ConsecutiveFailures = c.failures

	if prev != c.snap.Status {
		if c.snap.Status == StatusServing {
			// Transition: not serving → serving
			c.setServing(grpc_health_v1.HealthCheckResponse_SERVING)
			c.logger.Info("health: ledger recovered")
		} else {
			c.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			c.logger.Error("health: ledger not serving", zap.Int("fail_count", c.failures))
		}
	}
	return success
}

// Status returns the most recent probe result.
func (c *Checker) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Checker) setServing(s grpc_health_v1.HealthCheckResponse_ServingStatus) {
	c.grpc.SetServingStatus("", s)
	c.grpc.SetServingStatus(ServiceName, s)
}
