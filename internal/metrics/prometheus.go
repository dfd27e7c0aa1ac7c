package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensCreatedTotal   prometheus.Counter
	TokensRotatedTotal   prometheus.Counter
	LoginSuccessTotal    prometheus.Counter
	LoginFailureTotal    prometheus.Counter
	UsersRegisteredTotal prometheus.Counter
	MFAChallengesTotal   prometheus.Counter
	RateLimitedTotal     prometheus.Counter
)

func init() {
	// Counters exist unregistered from package load so services can Inc()
	// before InitCustomMetrics runs (notably in tests).
	InitCustomMetrics(nil)
}

// InitCustomMetrics initializes and registers custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	TokensCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_tokens_created_total",
		Help: "Total number of session tokens created.",
	})
	TokensRotatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_tokens_rotated_total",
		Help: "Total number of session pairs rotated.",
	})
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_logins_failure_total",
		Help: "Total number of failed logins.",
	})
	UsersRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_users_registered_total",
		Help: "Total number of users registered.",
	})
	MFAChallengesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_mfa_challenges_total",
		Help: "Total number of MFA challenges issued.",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter.",
	})

	if reg == nil {
		return
	}

	for name, c := range map[string]prometheus.Collector{
		"TokensCreatedTotal":   TokensCreatedTotal,
		"TokensRotatedTotal":   TokensRotatedTotal,
		"LoginSuccessTotal":    LoginSuccessTotal,
		"LoginFailureTotal":    LoginFailureTotal,
		"UsersRegisteredTotal": UsersRegisteredTotal,
		"MFAChallengesTotal":   MFAChallengesTotal,
		"RateLimitedTotal":     RateLimitedTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
