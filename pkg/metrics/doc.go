/*
Package metrics provides Prometheus metrics and health reporting for netpanel.

All collectors are package-level variables registered with the default
Prometheus registry in init, so any package can update them without wiring.
Handler exposes the registry for scraping on /metrics.

# Metric Catalog

Collections:
  - netpanel_collection_operations_total{collection,op,result}
  - netpanel_collection_records{collection}

Presets:
  - netpanel_preset_cache_reloads_total

Inventory (sampled by Collector):
  - netpanel_machines_total{state}: active, loading, inactive
  - netpanel_intnets_total
  - netpanel_intnet_apply_failures_total

Auth and API:
  - netpanel_login_attempts_total{result}: success, failure, throttled
  - netpanel_api_requests_total{method,route,status}
  - netpanel_api_request_duration_seconds{method,route}

Events:
  - netpanel_events_published_total{type}

Route labels use the gin route template (/network/snapshot/:id), never the raw
path, to keep cardinality bounded.

# Timing Operations

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, method, route)

# Health and Readiness

Components report their state with UpdateComponent. Health is unhealthy when
any registered component is unhealthy. Readiness only looks at the critical
components (storage and api by default, see SetCriticalComponents); one that
never reported counts as not ready. HealthHandler, ReadyHandler and
LivenessHandler serve these as JSON with 200 or 503.
*/
package metrics
