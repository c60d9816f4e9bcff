/*
Package metrics provides Prometheus metrics and health endpoints for mcci.

All metrics are registered with the default registry at package init and
exposed by Handler. Mux mounts the scrape endpoint next to the health
endpoints so the serve command needs a single listener:

	┌──────────── METRICS LISTENER ────────────┐
	│  /metrics   Prometheus text exposition    │
	│  /health    200 unless a component failed │
	│  /ready     200 once schema, revision and │
	│             api have reported healthy     │
	│  /live      200 while the process runs    │
	└───────────────────────────────────────────┘

# Metric Families

Subscriptions:

	mcci_subscriptions{bank}              gauge, live subscriptions
	mcci_subscription_keys{bank}          gauge, distinct keys
	mcci_subscriptions_expired_total      counter, dropped by the sweeper
	mcci_sweep_duration_seconds           histogram

Routing:

	mcci_requests_total{outcome}          accepted, rejected, error
	mcci_request_duration_seconds         histogram
	mcci_productions_total                counter
	mcci_data_total{origin}               local, remote

Transport and API:

	mcci_envelopes_total{kind,result}     data, ack, forward x sent, dropped
	mcci_sessions_active{role}            client, peer
	mcci_api_requests_total{method,status}
	mcci_api_request_duration_seconds{method}

# Timing

Timer wraps the common start/observe pattern:

	timer := metrics.NewTimer()
	resp, err := srv.ProcessRequest(c, r)
	timer.ObserveDuration(metrics.RequestDuration)

# Health

Components report through RegisterComponent or UpdateFromError. Readiness
depends only on the critical components; the sweeper reports health but does
not gate readiness.
*/
package metrics
