// Package offline replays scans that a scanner queued while it had no
// connection.
//
// Each event goes through the same movement and canteen transitions as a
// live scan, stamped with its original capture time and flagged as an
// offline sync. Events are applied in submission order; a failed event is
// reported in its result and the rest of the batch still runs.
//
// Batches arrive over HTTP (see the api package), MQTT on
// hostelgate/sync/{device_id}, or Kafka. Events carrying an event_id are
// de-duplicated per device with either an in-memory or a Redis claim store.
// A claim is pending while its event is applied and becomes applied on
// success; a copy that arrives while the claim is pending fails with
// duplicate_in_flight so the scanner keeps it queued.
package offline
