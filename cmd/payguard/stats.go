package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/payguard/payguard/ratelimit"
	"github.com/payguard/payguard/resilience"
)

type upstreamStats struct {
	Calls         int64 `json:"calls"`
	Successes     int64 `json:"successes"`
	Failures      int64 `json:"failures"`
	Exhausted     int64 `json:"exhausted"`
	ShortCircuits int64 `json:"short_circuits"`
}

type breakerStats struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	OpenedAt            string `json:"opened_at,omitempty"`
}

type admissionStats struct {
	Total       int64 `json:"total"`
	Allowed     int64 `json:"allowed"`
	Denied      int64 `json:"denied"`
	Whitelisted int64 `json:"whitelisted"`
	Blacklisted int64 `json:"blacklisted"`
	Burst       int64 `json:"burst"`
	Slowed      int64 `json:"slowed"`
	StoreErrors int64 `json:"store_errors"`
}

type inflightStats struct {
	Active   int64 `json:"active"`
	Max      int64 `json:"max"`
	Rejected int64 `json:"rejected"`
}

type gatewayStats struct {
	Upstream  upstreamStats   `json:"upstream"`
	Breaker   *breakerStats   `json:"breaker,omitempty"`
	Admission *admissionStats `json:"admission,omitempty"`
	Inflight  *inflightStats  `json:"inflight,omitempty"`
}

// statsHandler reports executor, breaker, admission, and inflight
// counters. Sections for disabled features are omitted.
func statsHandler(ex *resilience.Executor, limiter *ratelimit.Limiter, inflight *resilience.Inflight) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := ex.Stats()
		out := gatewayStats{
			Upstream: upstreamStats{
				Calls:         st.Calls,
				Successes:     st.Successes,
				Failures:      st.Failures,
				Exhausted:     st.Exhausted,
				ShortCircuits: st.ShortCircuits,
			},
		}

		if b := ex.Breaker(); b != nil {
			m := b.Snapshot()
			bs := &breakerStats{
				State:               m.State.String(),
				ConsecutiveFailures: m.Failures,
			}
			if !m.OpenedAt.IsZero() {
				bs.OpenedAt = m.OpenedAt.UTC().Format(time.RFC3339)
			}
			out.Breaker = bs
		}

		if limiter != nil {
			s := limiter.Stats()
			out.Admission = &admissionStats{
				Total:       s.Total,
				Allowed:     s.Allowed,
				Denied:      s.Denied,
				Whitelisted: s.Whitelisted,
				Blacklisted: s.Blacklisted,
				Burst:       s.Burst,
				Slowed:      s.Slowed,
				StoreErrors: s.StoreErrors,
			}
		}

		if inflight != nil {
			m := inflight.Metrics()
			out.Inflight = &inflightStats{
				Active:   m.Active,
				Max:      m.Max,
				Rejected: m.Rejected,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
