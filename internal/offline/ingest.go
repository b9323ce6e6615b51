package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/hostel-gate/internal/apperr"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/mqtt"
)

// Ingest errors.
var (
	ErrInvalidPayload = apperr.New(apperr.Invalid, "invalid_payload", "invalid offline batch payload")
	ErrEmptyBatch     = apperr.New(apperr.Invalid, "empty_batch", "offline batch contains no events")
	ErrDeviceMismatch = apperr.New(apperr.Unauthorized, "device_mismatch", "token device does not match upload topic")
)

// Verifier authenticates the token carried inside a batch.
type Verifier interface {
	ParseToken(token string) (auth.Identity, string, error)
	CheckSession(ctx context.Context, id auth.Identity, sessionID, clientAddr string) error
}

// Publisher sends replay results back to the uploading scanner.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
}

// SecurityScan is one queued movement scan as uploaded by a scanner.
type SecurityScan struct {
	EventID           string `json:"event_id,omitempty"`
	RollNo            string `json:"roll_no"`
	Action            string `json:"action"`
	OriginalTimestamp int64  `json:"original_timestamp"`
}

// CanteenScan is one queued canteen scan as uploaded by a scanner.
type CanteenScan struct {
	EventID           string `json:"event_id,omitempty"`
	RollNo            string `json:"roll_no"`
	OriginalTimestamp int64  `json:"original_timestamp"`
}

// Payload is an offline batch received over MQTT or Kafka.
type Payload struct {
	Token  string         `json:"token"`
	Scans  []SecurityScan `json:"scans,omitempty"`
	Visits []CanteenScan  `json:"visits,omitempty"`
	Events []Event        `json:"events,omitempty"`
}

// Flatten lists the batch: scans, then visits, then generic events, each
// in upload order.
func (p Payload) Flatten() []Event {
	out := make([]Event, 0, len(p.Scans)+len(p.Visits)+len(p.Events))
	for _, s := range p.Scans {
		out = append(out, Event{
			EventID:           s.EventID,
			Kind:              KindSecurity,
			RollNo:            s.RollNo,
			Action:            s.Action,
			OriginalTimestamp: s.OriginalTimestamp,
		})
	}
	for _, v := range p.Visits {
		out = append(out, Event{
			EventID:           v.EventID,
			Kind:              KindCanteen,
			RollNo:            v.RollNo,
			OriginalTimestamp: v.OriginalTimestamp,
		})
	}
	return append(out, p.Events...)
}

// BatchReply is published on the device's result topic.
type BatchReply struct {
	DeviceID  string   `json:"device_id"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results,omitempty"`
	Error     string   `json:"error,omitempty"`
	Code      string   `json:"code,omitempty"`
}

// Ingestor authenticates offline batches arriving on message transports and
// hands them to the reconciler.
type Ingestor struct {
	reconciler *Reconciler
	verifier   Verifier
	publisher  Publisher
	logger     Logger
}

// NewIngestor creates an ingestor. publisher may be nil when results are
// not sent back (Kafka-only deployments).
func NewIngestor(reconciler *Reconciler, verifier Verifier, publisher Publisher, logger Logger) *Ingestor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{
		reconciler: reconciler,
		verifier:   verifier,
		publisher:  publisher,
		logger:     logger,
	}
}

// HandlePayload verifies and replays one batch.
func (i *Ingestor) HandlePayload(ctx context.Context, payload []byte) ([]Result, error) {
	_, results, err := i.handle(ctx, payload, "")
	return results, err
}

// HandleMessage processes a batch received on hostelgate/sync/{device_id}
// and publishes the outcome to the device's result topic.
func (i *Ingestor) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	topics := mqtt.Topics{}
	deviceID, ok := topics.SyncDeviceID(topic)
	if !ok {
		return fmt.Errorf("unexpected sync topic %q", topic)
	}

	_, results, err := i.handle(ctx, payload, deviceID)

	reply := BatchReply{DeviceID: deviceID, Results: results}
	reply.Succeeded, reply.Failed = Summary(results)
	if err != nil {
		reply.Error = err.Error()
		reply.Code = apperr.CodeOf(err)
		i.logger.Warn("offline batch rejected", "device_id", deviceID, "error", err)
	}

	if i.publisher == nil {
		return err
	}
	data, mErr := json.Marshal(reply)
	if mErr != nil {
		return errors.Join(err, fmt.Errorf("marshalling batch reply: %w", mErr))
	}
	if pErr := i.publisher.Publish(topics.SyncResult(deviceID), data, i.publisher.QoS(), false); pErr != nil {
		return errors.Join(err, fmt.Errorf("publishing batch reply: %w", pErr))
	}
	return err
}

// HandleRecord processes a batch read from Kafka. The record key is ignored;
// the device is taken from the token.
func (i *Ingestor) HandleRecord(ctx context.Context, _, value []byte) error {
	_, err := i.HandlePayload(ctx, value)
	return err
}

// handle decodes and authenticates a batch. When deviceID is non-empty the
// token must belong to that device.
func (i *Ingestor) handle(ctx context.Context, payload []byte, deviceID string) (auth.Identity, []Result, error) {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return auth.Identity{}, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.Token == "" {
		return auth.Identity{}, nil, auth.ErrTokenInvalid
	}

	id, sessionID, err := i.verifier.ParseToken(p.Token)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	if deviceID != "" && id.DeviceID != deviceID {
		return id, nil, ErrDeviceMismatch
	}
	if err := i.verifier.CheckSession(ctx, id, sessionID, ""); err != nil {
		return id, nil, err
	}

	events := p.Flatten()
	if len(events) == 0 {
		return id, nil, ErrEmptyBatch
	}
	return id, i.reconciler.Replay(ctx, id, events), nil
}
