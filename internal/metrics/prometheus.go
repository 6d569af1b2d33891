package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	AuthCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_authorization_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_tokens_issued_total",
		Help: "Total number of access tokens issued, by grant type.",
	}, []string{"grant_type"})
	TokenReuseDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_token_reuse_detected_total",
		Help: "Total number of refresh token reuse detections. Each one revoked a token family.",
	})
	IntrospectionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_introspection_requests_total",
		Help: "Total number of introspection requests, by result.",
	}, []string{"active"})
	RevocationTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_revocation_requests_total",
		Help: "Total number of revocation requests.",
	})
	ClientsRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_clients_registered_total",
		Help: "Total number of clients registered.",
	})
	GrantsRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_grants_revoked_total",
		Help: "Total number of user grants revoked.",
	})
	CleanupRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_cleanup_rows_removed_total",
		Help: "Total number of expired or consumed rows removed by the cleanup worker.",
	})
)

// Register attaches the server's collectors to reg. Call once at startup;
// the counters themselves are usable before registration.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics")
		return
	}
	collectors := []prometheus.Collector{
		AuthCodesIssuedTotal,
		TokensIssuedTotal,
		TokenReuseDetectedTotal,
		IntrospectionTotal,
		RevocationTotal,
		ClientsRegisteredTotal,
		GrantsRevokedTotal,
		CleanupRemovedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
}
