package offline

import "time"

// Kind selects which transition an event replays through.
type Kind string

// Event kinds.
const (
	KindSecurity Kind = "security"
	KindCanteen  Kind = "canteen"
)

// Event is one scan captured while the scanner was offline.
type Event struct {
	// EventID is an optional client idempotency token. Events that carry one
	// are applied at most once per device while the dedup TTL lasts.
	EventID string `json:"event_id,omitempty"`

	Kind   Kind   `json:"kind"`
	RollNo string `json:"roll_no"`

	// Action is "in" or "out" for security events; ignored for canteen.
	Action string `json:"action,omitempty"`

	// OriginalTimestamp is the scan time in milliseconds since the epoch.
	// Zero means "now".
	OriginalTimestamp int64 `json:"original_timestamp"`
}

// Time converts OriginalTimestamp, reporting false when it is unset.
func (e Event) Time() (time.Time, bool) {
	if e.OriginalTimestamp <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(e.OriginalTimestamp).UTC(), true
}

// Result reports the outcome of one replayed event. Results are returned in
// submission order; Index is the event's position in the batch.
type Result struct {
	Index        int       `json:"index"`
	EventID      string    `json:"event_id,omitempty"`
	Kind         Kind      `json:"kind"`
	RollNo       string    `json:"roll_no"`
	Action       string    `json:"action,omitempty"`
	Time         time.Time `json:"time"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Code         string    `json:"code,omitempty"`
	Duplicate    bool      `json:"duplicate,omitempty"`
	Disciplinary bool      `json:"disciplinary,omitempty"`
	Unauthorized bool      `json:"unauthorized,omitempty"`
}

// Summary counts successes and failures in a result list.
func Summary(results []Result) (succeeded, failed int) {
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
