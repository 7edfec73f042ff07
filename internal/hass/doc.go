// Package hass mirrors printer entities into Home Assistant over MQTT.
//
// For every printer entry a Publisher listens to the entry's entity
// platform and publishes:
//   - a retained discovery document per sensor, so Home Assistant creates
//     the entity without manual configuration
//   - the formatted state of each sensor, only when it changed
//   - the entry's availability (online while CONNECTED)
//   - the full telemetry snapshot as JSON
//
// Bridge ties publishers to the integration manager as a sink and
// re-sends discovery when Home Assistant announces that it restarted.
package hass
