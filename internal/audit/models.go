package audit

import (
	"time"

	"hatchery/contracts/spawn"
)

// Action names a registry event worth an audit trail entry.
type Action string

const (
	ActionInstanceCreated      Action = "instance_created"
	ActionInstanceRegistered   Action = "instance_registered"
	ActionRegistrationRejected Action = "registration_rejected"
	ActionInstanceDeactivated  Action = "instance_deactivated"
	ActionViewingKeyWritten    Action = "viewing_key_written"
	ActionConfigUpdated        Action = "config_updated"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	Actor     spawn.Address `json:"actor,omitempty"`
	Subject   spawn.Address `json:"subject,omitempty"`
	Owner     spawn.Address `json:"owner,omitempty"`
	Label     string        `json:"label,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}
