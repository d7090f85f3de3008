// Package api serves the optional operator endpoints of a running crawl:
//
//	GET /healthz    liveness
//	GET /readyz     database reachability
//	GET /metrics    Prometheus collectors
//	GET /v1/stats   counters of the current or last run
package api
