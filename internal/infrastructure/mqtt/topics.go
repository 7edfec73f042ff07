package mqtt

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Topic prefixes used by the bridge.
const (
	// TopicPrefix is the base for every topic the bridge owns.
	TopicPrefix = "creality"

	// TopicPrefixSystem is the base for bridge-wide topics.
	TopicPrefixSystem = "creality/system"

	// DefaultDiscoveryPrefix is Home Assistant's default discovery prefix.
	DefaultDiscoveryPrefix = "homeassistant"

	// DiscoveryNodePrefix prefixes the node_id segment of discovery topics.
	DiscoveryNodePrefix = "creality_"

	// objectIDHashLen is the hex length of the suffix added to rewritten keys.
	objectIDHashLen = 8
)

// Topics provides builders for bridge MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SensorState("01J9...", "nozzleTemp")
//	// Returns: "creality/01J9.../sensor/nozzleTemp/state"
type Topics struct {
	// DiscoveryPrefix overrides DefaultDiscoveryPrefix when non-empty.
	DiscoveryPrefix string
}

// SystemStatus returns the bridge status topic carrying the LWT.
//
// Example: creality/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// EntryAvailability returns the availability topic for one printer entry.
//
// Example: creality/{entry}/availability
func (Topics) EntryAvailability(entryID string) string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefix, entryID)
}

// EntryState returns the topic carrying the full telemetry snapshot.
//
// Example: creality/{entry}/state
func (Topics) EntryState(entryID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, entryID)
}

// SensorState returns the state topic for a single sensor.
//
// Example: creality/{entry}/sensor/nozzleTemp/state
func (Topics) SensorState(entryID, key string) string {
	return fmt.Sprintf("%s/%s/sensor/%s/state", TopicPrefix, entryID, ObjectID(key))
}

// DiscoveryConfig returns the Home Assistant discovery topic for a component.
//
// Example: homeassistant/sensor/creality_{entry}/nozzleTemp/config
func (t Topics) DiscoveryConfig(component, entryID, key string) string {
	return fmt.Sprintf("%s/%s/%s%s/%s/config",
		t.discoveryPrefix(), component, DiscoveryNodePrefix, ObjectID(entryID), ObjectID(key))
}

// DiscoveryStatus returns the topic Home Assistant publishes its birth
// message on.
//
// Example: homeassistant/status
func (t Topics) DiscoveryStatus() string {
	return t.discoveryPrefix() + "/status"
}

// AllEntries returns a pattern matching every per-entry topic.
//
// Pattern: creality/#
func (Topics) AllEntries() string {
	return TopicPrefix + "/#"
}

func (t Topics) discoveryPrefix() string {
	if t.DiscoveryPrefix != "" {
		return t.DiscoveryPrefix
	}
	return DefaultDiscoveryPrefix
}

// ObjectID converts a telemetry key into a discovery-safe identifier.
// Home Assistant accepts [a-zA-Z0-9_-] in node and object ids; anything
// else becomes an underscore. Case is preserved so keys differing only
// in case stay distinct. When a key had to be rewritten, a hash of the
// raw key is appended so "nozzle.temp" and "nozzle_temp" get different
// topics. The result depends only on the key, so retained topics stay
// stable across restarts.
func ObjectID(key string) string {
	var b strings.Builder
	b.Grow(len(key) + objectIDHashLen + 1)
	rewritten := key == ""
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
			rewritten = true
		}
	}
	if rewritten {
		h := fnv.New32a()
		_, _ = h.Write([]byte(key))
		fmt.Fprintf(&b, "_%08x", h.Sum32())
	}
	return b.String()
}

// validPublishTopic reports whether topic can be published to.
func validPublishTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#")
}
