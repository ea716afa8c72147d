package mqtt

import "fmt"

// Topic scheme for the daemon's MQTT surface.
//
// Group addresses appear URL-encoded in topics ("1/2/3" becomes
// "1%2F2%2F3") because the slash is the MQTT level separator. Use
// knx.GroupAddress.URLEncode when building addresses for these helpers.
const (
	// TopicPrefix is the base for all daemon topics.
	TopicPrefix = "knxip"
)

// Topics provides builders for the daemon's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State(ga.URLEncode())
//	// Returns: "knxip/state/1%2F2%2F3"
type Topics struct{}

// State returns the topic for telegram values observed on the bus.
// Published retained so new subscribers see the last known value.
//
// Example: knxip/state/1%2F2%2F3
func (Topics) State(address string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, address)
}

// Set returns the topic a controller publishes to for a group write.
//
// Example: knxip/set/1%2F2%2F3
func (Topics) Set(address string) string {
	return fmt.Sprintf("%s/set/%s", TopicPrefix, address)
}

// Read returns the topic a controller publishes to for a group read.
// The answering telegram surfaces on the matching state topic.
//
// Example: knxip/read/1%2F2%2F3
func (Topics) Read(address string) string {
	return fmt.Sprintf("%s/read/%s", TopicPrefix, address)
}

// Status returns the daemon status topic. Carries the LWT and the
// periodic health report.
//
// Example: knxip/status
func (Topics) Status() string {
	return fmt.Sprintf("%s/status", TopicPrefix)
}

// Gateways returns the topic for discovery results.
//
// Example: knxip/gateways
func (Topics) Gateways() string {
	return fmt.Sprintf("%s/gateways", TopicPrefix)
}

// AllSets returns a pattern matching all group write commands.
//
// Pattern: knxip/set/+
func (Topics) AllSets() string {
	return fmt.Sprintf("%s/set/+", TopicPrefix)
}

// AllReads returns a pattern matching all group read commands.
//
// Pattern: knxip/read/+
func (Topics) AllReads() string {
	return fmt.Sprintf("%s/read/+", TopicPrefix)
}

// AllStates returns a pattern matching all state updates.
//
// Pattern: knxip/state/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}
