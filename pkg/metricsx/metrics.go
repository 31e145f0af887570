// Package metricsx holds the Prometheus collectors for MFA outcomes. A nil
// *MFA is valid and records nothing.
package metricsx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for verifications.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalidCode   = "invalid_code"
	OutcomeLockedOut     = "locked_out"
	OutcomeNotConfigured = "not_configured"
	OutcomeError         = "error"
)

type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
}

type MFA struct {
	Verifications *prometheus.CounterVec
	Lockouts      prometheus.Counter
	Enrollments   *prometheus.CounterVec
	AuditFailures *prometheus.CounterVec
}

// New constructs the collectors and registers them, reusing collectors that
// are already registered under the same name.
func New(opts Options) (*MFA, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "mfa"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &MFA{}
	var err error

	m.Verifications, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Second-factor verifications partitioned by method and outcome.",
	}, []string{"method", "outcome"}))
	if err != nil {
		return nil, err
	}

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Number of times a user was locked out of second-factor verification.",
	})
	if err := reg.Register(lockouts); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register lockouts collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing lockouts collector has unexpected type %T", already.ExistingCollector)
		}
		lockouts = existing
	}
	m.Lockouts = lockouts

	m.Enrollments, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrollments_total",
		Help:      "Enrollment transitions partitioned by stage (begin, confirm, disable).",
	}, []string{"stage"}))
	if err != nil {
		return nil, err
	}

	m.AuditFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_sink_failures_total",
		Help:      "Audit events a sink failed to accept.",
	}, []string{"sink"}))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *MFA) ObserveVerification(method, outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(method, outcome).Inc()
}

func (m *MFA) ObserveLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *MFA) ObserveEnrollment(stage string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(stage).Inc()
}

func (m *MFA) ObserveAuditFailure(sink string) {
	if m == nil {
		return
	}
	m.AuditFailures.WithLabelValues(sink).Inc()
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
