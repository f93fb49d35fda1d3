// Package metrics exposes Prometheus collectors for the login protection
// subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lychgate_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	TemporaryBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lychgate_temporary_blocks_total",
		Help: "Temporary lockouts entered.",
	})
	PermanentBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lychgate_permanent_blocks_total",
		Help: "Permanent lockouts latched.",
	})
	LockoutStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lychgate_lockout_store_errors_total",
		Help: "Document store faults by operation.",
	}, []string{"op"})
)

// Login attempt outcomes.
const (
	OutcomeSuccess           = "success"
	OutcomeInvalidCredential = "invalid_credential"
	OutcomeBlocked           = "blocked"
	OutcomeUpstreamThrottled = "upstream_throttled"
	OutcomeMFAChallenge      = "mfa_challenge"
)
