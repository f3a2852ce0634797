package ratelimit

import "sync/atomic"

// stats tracks admission decisions over the limiter's lifetime.
type stats struct {
	total       atomic.Int64
	allowed     atomic.Int64
	denied      atomic.Int64
	whitelisted atomic.Int64
	blacklisted atomic.Int64
	burst       atomic.Int64
	slowed      atomic.Int64
	storeErrors atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the limiter's counters.
// Whitelisted and Blacklisted count within Allowed and Denied; Burst
// counts allowances granted above the base limit, and Slowed the subset
// that carried a delay. StoreErrors counts fail-open admissions.
type StatsSnapshot struct {
	Total       int64
	Allowed     int64
	Denied      int64
	Whitelisted int64
	Blacklisted int64
	Burst       int64
	Slowed      int64
	StoreErrors int64
}

func (s *stats) record(res Result) {
	s.total.Add(1)
	if res.Allowed {
		s.allowed.Add(1)
	} else {
		s.denied.Add(1)
	}

	switch res.Reason {
	case ReasonWhitelisted:
		s.whitelisted.Add(1)
	case ReasonBlacklisted:
		s.blacklisted.Add(1)
	case ReasonBurst:
		s.burst.Add(1)
		if res.SlowDown > 0 {
			s.slowed.Add(1)
		}
	case ReasonStoreFailOpen:
		s.storeErrors.Add(1)
	}
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Total:       s.total.Load(),
		Allowed:     s.allowed.Load(),
		Denied:      s.denied.Load(),
		Whitelisted: s.whitelisted.Load(),
		Blacklisted: s.blacklisted.Load(),
		Burst:       s.burst.Load(),
		Slowed:      s.slowed.Load(),
		StoreErrors: s.storeErrors.Load(),
	}
}
