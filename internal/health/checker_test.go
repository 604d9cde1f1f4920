package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubProber struct {
	mu  sync.Mutex
	n   int
	err error
}

func (s *stubProber) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n, s.err
}

func (s *stubProber) set(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n, s.err = n, err
}

func grpcStatus(t *testing.T, c *Checker, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.GRPCServer().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestNew_servingByDefault(t *testing.T) {
	c := New(&stubProber{}, Config{}, zap.NewNop())

	if got := c.Status().Status; got != StatusServing {
		t.Errorf("status = %q, want serving", got)
	}
	if got := grpcStatus(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("grpc status = %v", got)
	}
	if got := grpcStatus(t, c, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("overall grpc status = %v", got)
	}
}

func TestCheck_recordsEntries(t *testing.T) {
	store := &stubProber{n: 7}
	c := New(store, Config{}, zap.NewNop())

	var gotSuccess bool
	var gotEntries int
	c.SetMetricsRecord(func(success bool, entries int) {
		gotSuccess, gotEntries = success, entries
	})

	if !c.Check(context.Background()) {
		t.Fatal("expected probe to succeed")
	}
	snap := c.Status()
	if snap.Entries != 7 {
		t.Errorf("entries = %d, want 7", snap.Entries)
	}
	if snap.LastCheck.IsZero() {
		t.Error("expected LastCheck to be set")
	}
	if !gotSuccess || gotEntries != 7 {
		t.Errorf("metrics callback got (%v, %d)", gotSuccess, gotEntries)
	}
}

func TestCheck_notServingAfterThreshold(t *testing.T) {
	store := &stubProber{err: errors.New("connection refused")}
	c := New(store, Config{FailThreshold: 3}, zap.NewNop())

	for i := 0; i < 2; i++ {
		c.Check(context.Background())
	}
	if got := c.Status().Status; got != StatusServing {
		t.Fatalf("status after 2 failures = %q, want serving", got)
	}

	c.Check(context.Background())
	if got := c.Status().Status; got != StatusNotServing {
		t.Fatalf("status after 3 failures = %q, want not_serving", got)
	}
	if got := grpcStatus(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("grpc status = %v, want NOT_SERVING", got)
	}
	if got := c.Status().ConsecutiveFailures; got != 3 {
		t.Errorf("consecutive failures = %d", got)
	}
}

func TestCheck_recovers(t *testing.T) {
	store := &stubProber{err: errors.New("down")}
	c := New(store, Config{FailThreshold: 1}, zap.NewNop())

	c.Check(context.Background())
	if got := grpcStatus(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("grpc status = %v, want NOT_SERVING", got)
	}

	store.set(2, nil)
	c.Check(context.Background())
	if got := grpcStatus(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("grpc status after recovery = %v, want SERVING", got)
	}
	if snap := c.Status(); snap.ConsecutiveFailures != 0 || snap.Entries != 2 {
		t.Errorf("snapshot after recovery = %+v", snap)
	}
}

func TestStart_stopsOnCancel(t *testing.T) {
	c := New(&stubProber{n: 1}, Config{CheckInterval: 10 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if got := grpcStatus(t, c, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("grpc status after shutdown = %v, want NOT_SERVING", got)
	}
}
