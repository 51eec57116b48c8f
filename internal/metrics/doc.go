// Package ndmetrics exports Neighbor Discovery table occupancy and
// protocol counters to Prometheus.
package ndmetrics
