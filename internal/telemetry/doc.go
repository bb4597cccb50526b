// Package telemetry owns the node's side of the Gray Logic MQTT contract.
//
// This package manages:
//   - Topic naming shared with the Core
//   - Publishing sensor readings as JSON documents
//   - Retained presence/status messages
//   - Pulling configuration updates the Core retains per node
//
// The configuration channel is deliberately pull-based: the Core retains a
// version number and a document per node, and each node compares versions
// during its wake cycle. A sleeping node misses nothing, and the Core never
// needs to know when nodes are awake.
package telemetry
