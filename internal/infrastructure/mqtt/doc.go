// Package mqtt provides MQTT connectivity for Hostel Gate.
//
// The core uses the broker for two things:
//   - publishing alerts (hostelgate/alert/{type}) to notification consumers
//   - receiving offline batches from scanners that reconnect after a network
//     outage (hostelgate/sync/{device_id}) and answering with per-event
//     results (hostelgate/sync/{device_id}/result)
//
// The client auto-reconnects with backoff, restores subscriptions, and
// registers a retained Last Will on hostelgate/system/status.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishEvent(mqtt.Topics{}.Alert("unauthorized_visit"), payload)
//
// TLS should be enabled for any broker reachable outside the gate network.
package mqtt
