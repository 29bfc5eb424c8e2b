package events

import "encoding/json"

// Event name constants
const (
	// CalibrationUpdate carries one telemetry tick of the active run.
	CalibrationUpdate = "calibration-update"
	// CalibrationScheduled announces an upcoming cron-triggered run.
	CalibrationScheduled = "calibration-scheduled"
)

// CalibrationScheduledEvent is the payload of CalibrationScheduled.
type CalibrationScheduledEvent struct {
	RunAt int64 `json:"runAt"` // unix seconds
	Steps int   `json:"steps"`
}

// Event is the envelope of every frame pushed on the controller event stream.
type Event struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
