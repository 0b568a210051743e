// Package health probes the relay's own SMTP listeners and aggregates
// their reachability into a liveness report.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// probeTimeout bounds a single TCP connect attempt.
const probeTimeout = 2 * time.Second

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// PortHealth is the probe result for one listener port.
type PortHealth struct {
	Port      int
	Reachable bool
}

// Report aggregates one probe round over all monitored ports.
type Report struct {
	Status string
	Ports  []PortHealth
}

// OK reports whether every monitored port was reachable.
func (r Report) OK() bool {
	return r.Status == StatusOK
}

// Prober checks TCP reachability of a fixed set of ports on one host.
// The port set is decided at process start and never changes.
type Prober struct {
	host   string
	ports  []int
	logger *slog.Logger
}

// NewProber creates a prober for the given bind host and listener ports.
func NewProber(host string, ports []int, logger *slog.Logger) *Prober {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &Prober{host: host, ports: ports, logger: logger}
}

// Check probes every port concurrently and waits for all attempts to finish
// before aggregating. A port is reachable when a TCP connect succeeds within
// the probe timeout; any failure is reported as unreachable, never as an
// error.
func (p *Prober) Check(ctx context.Context) Report {
	results := make([]PortHealth, len(p.ports))

	var wg sync.WaitGroup
	for i, port := range p.ports {
		wg.Add(1)
		go func(i, port int) {
			defer wg.Done()
			results[i] = PortHealth{Port: port, Reachable: p.probe(ctx, port)}
		}(i, port)
	}
	wg.Wait()

	report := Report{Status: StatusOK, Ports: results}
	for _, ph := range results {
		if !ph.Reachable {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (p *Prober) probe(ctx context.Context, port int) bool {
	dialer := net.Dialer{Timeout: probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.host, fmt.Sprintf("%d", port)))
	if err != nil {
		p.logger.Debug("health probe failed", "port", port, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}
