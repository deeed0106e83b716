package health

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCheckAll(t *testing.T) {
	st := CheckAll(context.Background(),
		Check{Name: "store", Run: func(context.Context) error { return nil }},
		Check{Name: "capture", Run: func(context.Context) error { return errors.New("no device") }},
	)
	if st.OK || len(st.Checks) != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
	if !st.Checks[0].OK || st.Checks[1].Error != "no device" {
		t.Fatalf("unexpected checks %+v", st.Checks)
	}
	out := st.String()
	if !strings.HasPrefix(out, "Health: FAIL") || !strings.Contains(out, "capture") {
		t.Fatalf("unexpected rendering %q", out)
	}
}

func TestCheckAllEmpty(t *testing.T) {
	if st := CheckAll(context.Background()); !st.OK {
		t.Fatalf("no checks should be healthy")
	}
}

func TestGRPCHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewGRPCServer()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pcancel()
	st, err := Probe(pctx, lis.Addr().String(), Service)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before start, got %v", st)
	}

	check := GRPCCheck(lis.Addr().String(), Service)
	if err := check.Run(pctx); !errors.Is(err, ErrNotServing) {
		t.Fatalf("expected ErrNotServing, got %v", err)
	}

	srv.SetServing(true)
	if st, _ = Probe(pctx, lis.Addr().String(), ""); st != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", st)
	}
	if err := check.Run(pctx); err != nil {
		t.Fatalf("expected passing check, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
