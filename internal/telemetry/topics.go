package telemetry

import "fmt"

// Topics provides builders for the node's MQTT topics.
// Using these helpers keeps node and Core agreeing on the hierarchy.
//
// All node topics use the scheme: {prefix}/{node_id}/{category}
//
//	topics := telemetry.Topics{Prefix: "graylogic/node", NodeID: "node-livingroom"}
//	topics.Data() // "graylogic/node/node-livingroom/data"
type Topics struct {
	Prefix string
	NodeID string
}

// Data returns the topic readings are published on.
//
// Example: graylogic/node/node-livingroom/data
func (t Topics) Data() string {
	return fmt.Sprintf("%s/%s/data", t.Prefix, t.NodeID)
}

// Status returns the topic for the node's retained presence message.
//
// Example: graylogic/node/node-livingroom/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", t.Prefix, t.NodeID)
}

// ConfigVersion returns the topic where the Core retains the current
// configuration version number for this node.
//
// Example: graylogic/node/node-livingroom/config/version
func (t Topics) ConfigVersion() string {
	return fmt.Sprintf("%s/%s/config/version", t.Prefix, t.NodeID)
}

// Config returns the topic where the Core retains the full configuration
// document for this node.
//
// Example: graylogic/node/node-livingroom/config
func (t Topics) Config() string {
	return fmt.Sprintf("%s/%s/config", t.Prefix, t.NodeID)
}

// Command returns the topic the Core uses to address this node directly.
//
// Example: graylogic/node/node-livingroom/cmd
func (t Topics) Command() string {
	return fmt.Sprintf("%s/%s/cmd", t.Prefix, t.NodeID)
}
