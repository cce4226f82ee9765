package engine

import "golang.org/x/time/rate"

// perMinuteLimiter builds a limiter for a per-minute request ceiling.
// Non-positive values fall back to 20 req/min.
func perMinuteLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 20
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
}

// stateFromErr maps a probe failure to a health state. Throttling and
// timeouts are degradation; auth and availability failures take the engine
// out of dispatch.
func stateFromErr(err error) HealthState {
	kind, ok := KindOf(err)
	if !ok {
		return HealthUnhealthy
	}
	switch kind {
	case KindRateLimited, KindTimeout:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}
