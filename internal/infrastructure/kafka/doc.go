// Package kafka consumes offline scanner batches from a Kafka topic.
//
// Gateways that buffer scans from several scanners can forward them to the
// configured topic instead of calling the HTTP sync endpoints. Each message
// value is one batch; the consumer hands it to the offline ingestor.
package kafka
