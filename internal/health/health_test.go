package health

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listen opens a listener on an ephemeral port and returns its port.
func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a port that was just released and so should refuse
// connections.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, port := listen(t)
	ln.Close()
	return port
}

func TestCheckAllReachable(t *testing.T) {
	_, p1 := listen(t)
	_, p2 := listen(t)
	_, p3 := listen(t)

	prober := NewProber("127.0.0.1", []int{p1, p2, p3}, testLogger())
	report := prober.Check(context.Background())

	if !report.OK() || report.Status != StatusOK {
		t.Errorf("expected ok report, got %+v", report)
	}
	if len(report.Ports) != 3 {
		t.Fatalf("expected 3 port results, got %d", len(report.Ports))
	}
	for _, ph := range report.Ports {
		if !ph.Reachable {
			t.Errorf("port %d unexpectedly unreachable", ph.Port)
		}
	}
}

func TestCheckDegraded(t *testing.T) {
	_, up := listen(t)
	down := closedPort(t)

	prober := NewProber("127.0.0.1", []int{up, down}, testLogger())
	report := prober.Check(context.Background())

	if report.OK() || report.Status != StatusDegraded {
		t.Errorf("expected degraded report, got %+v", report)
	}
	for _, ph := range report.Ports {
		switch ph.Port {
		case up:
			if !ph.Reachable {
				t.Error("live port reported unreachable")
			}
		case down:
			if ph.Reachable {
				t.Error("closed port reported reachable")
			}
		}
	}
}

func TestProberRewritesWildcardHost(t *testing.T) {
	_, port := listen(t)
	prober := NewProber("0.0.0.0", []int{port}, testLogger())
	if report := prober.Check(context.Background()); !report.OK() {
		t.Errorf("wildcard host should probe loopback, got %+v", report)
	}
}

func TestCheckPreservesPortOrder(t *testing.T) {
	_, p1 := listen(t)
	_, p2 := listen(t)

	prober := NewProber("127.0.0.1", []int{p1, p2}, testLogger())
	report := prober.Check(context.Background())
	if report.Ports[0].Port != p1 || report.Ports[1].Port != p2 {
		t.Errorf("port order not preserved: %+v", report.Ports)
	}
}
