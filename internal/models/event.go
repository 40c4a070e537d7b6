package models

import "time"

// Event statuses for the communication response event stream.
const (
	EventStatusSuccess = "SUCCESS"
	EventStatusFail    = "FAIL"
)

// ResponseEvent is the communication outcome published to the event sink.
// Publishing is fire-and-forget; a failed publish is logged and never retried.
type ResponseEvent struct {
	ActorID           string    `json:"actorId"`
	Scenario          string    `json:"scenario"`
	CommunicationUUID string    `json:"communicationUUID"`
	CommunicationCode string    `json:"communicationCode"`
	Provider          string    `json:"provider"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	Detail            string    `json:"detail,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewSuccessEvent builds a success event for the given record.
func NewSuccessEvent(rec *PipelineRecord, detail string) ResponseEvent {
	return newEvent(rec, EventStatusSuccess, "", detail)
}

// NewFailEvent builds a failure event for the given record.
func NewFailEvent(rec *PipelineRecord, reason string) ResponseEvent {
	return newEvent(rec, EventStatusFail, reason, "")
}

func newEvent(rec *PipelineRecord, status, reason, detail string) ResponseEvent {
	return ResponseEvent{
		ActorID:           rec.Base.ActorID,
		Scenario:          rec.Base.ScenarioName,
		CommunicationUUID: rec.Base.CommunicationUUID,
		CommunicationCode: rec.Base.CommunicationCode,
		Provider:          ChannelSMS,
		Status:            status,
		Reason:            reason,
		Detail:            detail,
		Timestamp:         time.Now(),
	}
}

// DeliveryReport is a parsed delivery receipt waiting for reconciliation with
// its outbound reporting row. RetryCount increases each time the matching
// UPDATE affected zero rows; it never decreases.
type DeliveryReport struct {
	MessageID   int64
	FinalStatus string
	DeliveredAt time.Time
	RetryCount  int
}
