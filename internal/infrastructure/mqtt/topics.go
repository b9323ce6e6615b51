package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Hostel Gate topic tree.
//
//	hostelgate/system/status               core online/offline (retained)
//	hostelgate/alert/{type}                alerts, e.g. unauthorized_visit
//	hostelgate/sync/{device_id}            offline batches uploaded by scanners
//	hostelgate/sync/{device_id}/result     per-event results for that batch
const (
	// TopicPrefix is the root of every Hostel Gate topic.
	TopicPrefix = "hostelgate"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"

	// TopicPrefixAlert is the base for alert topics.
	TopicPrefixAlert = TopicPrefix + "/alert"

	// TopicPrefixSync is the base for offline sync topics.
	TopicPrefixSync = TopicPrefix + "/sync"
)

// Topics provides builders for Hostel Gate MQTT topics.
//
//	topic := mqtt.Topics{}.Alert("unauthorized_visit")
//	// Returns: "hostelgate/alert/unauthorized_visit"
type Topics struct{}

// SystemStatus returns the system status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Alert returns the topic an alert of the given type is published on.
func (Topics) Alert(alertType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAlert, alertType)
}

// SyncBatch returns the topic a scanner uploads its offline queue to.
func (Topics) SyncBatch(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixSync, deviceID)
}

// SyncResult returns the topic the replay results for a device are published on.
func (Topics) SyncResult(deviceID string) string {
	return fmt.Sprintf("%s/%s/result", TopicPrefixSync, deviceID)
}

// AllAlerts returns a pattern matching every alert type.
//
// Pattern: hostelgate/alert/+
func (Topics) AllAlerts() string {
	return TopicPrefixAlert + "/+"
}

// AllSyncBatches returns a pattern matching every scanner's upload topic.
// Result topics are one level deeper and do not match.
//
// Pattern: hostelgate/sync/+
func (Topics) AllSyncBatches() string {
	return TopicPrefixSync + "/+"
}

// SyncDeviceID extracts the device id from a sync batch topic.
func (Topics) SyncDeviceID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixSync+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
