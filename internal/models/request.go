package models

import (
	"strings"

	"github.com/google/uuid"
)

// ChannelSMS is the only channel this service dispatches on. Quota rules and
// transaction records are always keyed with it.
const ChannelSMS = "SMS"

// Parameter is a single name/value pair attached to an inbound communication
// request. The upstream campaign engine sends the full scenario context this
// way; downstream components pick out the parameters they understand.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CommunicationRequest is the inbound request as handed over by the consumer
// entrypoint. It stays immutable once created; the quota verdict travels
// separately.
type CommunicationRequest struct {
	ActorID           string      `json:"actorId"`
	Scenario          string      `json:"scenario"`
	CommunicationUUID string      `json:"communicationUUID"`
	CommunicationCode string      `json:"communicationCode"`
	Parameters        []Parameter `json:"parameters"`
}

// Param returns the value of the named parameter, or "" when absent or blank.
func (r *CommunicationRequest) Param(name string) string {
	for _, p := range r.Parameters {
		if p.Name == name {
			return strings.TrimSpace(p.Value)
		}
	}
	return ""
}

// EnsureUUID assigns a fresh communication UUID when the upstream system did
// not provide one.
func (r *CommunicationRequest) EnsureUUID() {
	if strings.TrimSpace(r.CommunicationUUID) == "" {
		r.CommunicationUUID = uuid.NewString()
	}
}
