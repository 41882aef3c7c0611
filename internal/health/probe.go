// Package health checks backend liveness and its upstream dependency.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsletterChat/internal/backend"
)

// DefaultUpstream is the dependency checked when none is configured
const DefaultUpstream = "openai"

// Status is the body of a health endpoint
type Status = backend.HealthStatus

// Checker reads a health endpoint
type Checker interface {
	Health(ctx context.Context, path string) (backend.HealthStatus, error)
}

// Report is the combined result of one probe
type Report struct {
	Upstream       string
	Service        *Status
	UpstreamStatus *Status
	Err            string
	CheckedAt      time.Time
}

// Healthy is true when both checks succeeded and report a healthy status
func (r Report) Healthy() bool {
	return r.Err == "" && isUp(r.Service) && isUp(r.UpstreamStatus)
}

func isUp(s *Status) bool {
	if s == nil {
		return false
	}
	switch strings.ToLower(s.Status) {
	case "healthy", "ok":
		return true
	}
	return false
}

// Probe runs the two health checks
type Probe struct {
	checker  Checker
	upstream string
	logger   *slog.Logger
	now      func() time.Time
}

// NewProbe creates a Probe. An empty upstream means DefaultUpstream.
func NewProbe(checker Checker, upstream string, logger *slog.Logger) *Probe {
	if upstream == "" {
		upstream = DefaultUpstream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{checker: checker, upstream: upstream, logger: logger, now: time.Now}
}

// Check issues both requests concurrently. A failure of either is reported
// as one error string without naming the endpoint; whichever half
// succeeded is still filled in.
func (p *Probe) Check(ctx context.Context) Report {
	report := Report{Upstream: p.upstream}

	var g errgroup.Group
	g.Go(func() error {
		st, err := p.checker.Health(ctx, "/health")
		if err != nil {
			return err
		}
		report.Service = &st
		return nil
	})
	g.Go(func() error {
		st, err := p.checker.Health(ctx, "/health/"+p.upstream)
		if err != nil {
			return err
		}
		report.UpstreamStatus = &st
		return nil
	})

	if err := g.Wait(); err != nil {
		report.Err = err.Error()
		p.logger.Warn("health check failed", "error", err)
	}
	report.CheckedAt = p.now()
	return report
}

// Format renders a report as plain lines for the console
func Format(r Report) string {
	var b strings.Builder
	line := func(name string, s *Status) {
		if s == nil {
			fmt.Fprintf(&b, "%-10s unavailable\n", name+":")
			return
		}
		fmt.Fprintf(&b, "%-10s %s", name+":", s.Status)
		if s.Message != "" {
			fmt.Fprintf(&b, " (%s)", s.Message)
		}
		if s.Timestamp != "" {
			fmt.Fprintf(&b, " at %s", s.Timestamp)
		}
		b.WriteString("\n")
	}
	line("service", r.Service)
	line(r.Upstream, r.UpstreamStatus)
	if r.Err != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Err)
	}
	return b.String()
}
