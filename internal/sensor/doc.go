// Package sensor acquires the readings a node publishes each wake cycle.
//
// The protocol layers never see sensor hardware: a Source hands over a flat
// map of channel names to values and nothing else. The simulated source
// ships in this package; hardware-backed sources live with their board
// support code and satisfy the same interface.
package sensor
