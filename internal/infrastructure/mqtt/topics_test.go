package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{}
	custom := Topics{DiscoveryPrefix: "ha"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "creality/system/status"},
		{"availability", topics.EntryAvailability("e1"), "creality/e1/availability"},
		{"entry state", topics.EntryState("e1"), "creality/e1/state"},
		{"sensor state", topics.SensorState("e1", "nozzleTemp"), "creality/e1/sensor/nozzleTemp/state"},
		{"sensor state sanitised", topics.SensorState("e1", "bed temp/0"), "creality/e1/sensor/bed_temp_0_71b4bd25/state"},
		{"discovery default prefix", topics.DiscoveryConfig("sensor", "e1", "nozzleTemp"), "homeassistant/sensor/creality_e1/nozzleTemp/config"},
		{"discovery custom prefix", custom.DiscoveryConfig("camera", "e1", "camera"), "ha/camera/creality_e1/camera/config"},
		{"discovery status", custom.DiscoveryStatus(), "ha/status"},
		{"all entries", topics.AllEntries(), "creality/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestObjectID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nozzleTemp", "nozzleTemp"},
		{"connection_status", "connection_status"},
		{"a-b", "a-b"},
		{"with space", "with_space_7d4ef3c7"},
		{"x+y#z", "x_y_z_3334e862"},
		{"température", "temp_rature_69e6b960"},
		{"", "_811c9dc5"},
	}

	for _, tt := range tests {
		if got := ObjectID(tt.in); got != tt.want {
			t.Errorf("ObjectID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestObjectID_RewrittenKeysDoNotCollide(t *testing.T) {
	topics := Topics{}
	keys := []string{"nozzle_temp", "nozzle.temp", "nozzle temp", "nozzle/temp"}

	seen := make(map[string]string, len(keys))
	for _, key := range keys {
		for _, topic := range []string{
			topics.SensorState("e1", key),
			topics.DiscoveryConfig("sensor", "e1", key),
		} {
			if other, ok := seen[topic]; ok {
				t.Errorf("keys %q and %q share topic %q", other, key, topic)
			}
			seen[topic] = key
		}
	}

	if got := ObjectID("nozzle.temp"); got != "nozzle_temp_c16f3a97" {
		t.Errorf("ObjectID(nozzle.temp) = %q", got)
	}
	if ObjectID("nozzle.temp") != ObjectID("nozzle.temp") {
		t.Error("ObjectID is not stable")
	}
}

func TestValidPublishTopic(t *testing.T) {
	if validPublishTopic("") || validPublishTopic("a/+") || validPublishTopic("a/#") {
		t.Error("wildcard or empty topics must be rejected")
	}
	if !validPublishTopic("creality/e1/state") {
		t.Error("plain topic rejected")
	}
}
