// Package metrics provides Prometheus collectors for the auth service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OtpIssuedTotal counts OTP challenges created, by flow (signup/login/resend).
	OtpIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_issued_total",
			Help: "OTP challenges issued",
		},
		[]string{"flow"},
	)

	// OtpValidationsTotal counts validation attempts by outcome reason.
	OtpValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_validations_total",
			Help: "OTP validation attempts",
		},
		[]string{"outcome"},
	)

	// LockoutsTrippedTotal counts 24h locks applied to IPs.
	LockoutsTrippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_lockouts_tripped_total",
			Help: "Per-IP lockouts applied",
		},
	)

	// GuardRejectionsTotal counts protected-request rejections by reason.
	GuardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_guard_rejections_total",
			Help: "Access guard rejections",
		},
		[]string{"reason"},
	)

	// MailFailuresTotal counts outbound mail deliveries that failed.
	MailFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_mail_failures_total",
			Help: "Failed mail deliveries",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OtpIssuedTotal,
		OtpValidationsTotal,
		LockoutsTrippedTotal,
		GuardRejectionsTotal,
		MailFailuresTotal,
	)
}
