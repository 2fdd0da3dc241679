// Package metrics counts delivery outcomes and exposes them in the Prometheus
// text format. Collector is a queue.Observer; its handler renders the
// counters together with live queue gauges supplied by the caller.
package metrics
