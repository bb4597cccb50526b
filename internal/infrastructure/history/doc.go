// Package history mirrors published sensor readings into InfluxDB.
//
// The broker is the node's primary data path; this mirror is an optional
// side channel for bench rigs and mains-powered nodes, giving direct
// time-series access without going through the Core. It is disabled by
// default and the node runs identically without it.
//
// Writes are synchronous and one point per wake cycle, so there is no
// batching or background flushing to reason about on a device that powers
// off between cycles.
package history
