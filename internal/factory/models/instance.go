package models

import (
	"time"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
)

// RecordStatus is the registry-side status of an instance record.
// Records exist only from successful registration onward, so the
// status space here is smaller than the instance's own lifecycle:
// a spawned-but-unregistered instance has no record at all.
type RecordStatus string

const (
	RecordStatusActive   RecordStatus = "active"
	RecordStatusInactive RecordStatus = "inactive"
)

// IsValid reports whether the status is a known value.
func (s RecordStatus) IsValid() bool {
	return s == RecordStatusActive || s == RecordStatusInactive
}

// CanTransitionTo reports whether the transition is allowed.
// The only legal move is active to inactive; inactive is terminal.
func (s RecordStatus) CanTransitionTo(target RecordStatus) bool {
	return s == RecordStatusActive && target == RecordStatusInactive
}

// InstanceRecord is the registry's view of one registered instance.
//
// Invariants:
//   - Identity.Address is unique across all records and immutable
//   - Owner and Label are immutable after construction
//   - Status matches index membership exactly: an active record appears
//     in the global active index and its owner's active index, and in
//     neither inactive index; the inverse holds once inactive
//   - CreatedAt is immutable after construction
//
// The index-membership invariant is enforced at the service layer,
// which moves a record between index sides in the same guarded section
// that flips Status. A record observed on the wrong side is corruption,
// not a caller error.
type InstanceRecord struct {
	Identity  spawn.ServiceInfo `json:"identity"`
	Label     string            `json:"label"`
	Owner     spawn.Address     `json:"owner"`
	Status    RecordStatus      `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewInstanceRecord constructs an active record for a freshly
// registered instance.
func NewInstanceRecord(identity spawn.ServiceInfo, label string, owner spawn.Address, now time.Time) (*InstanceRecord, error) {
	if identity.Address.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "instance address cannot be empty")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "instance owner cannot be empty")
	}
	if label == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "instance label cannot be empty")
	}
	return &InstanceRecord{
		Identity:  identity,
		Label:     label,
		Owner:     owner,
		Status:    RecordStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsActive reports whether the record is on the active side.
func (r *InstanceRecord) IsActive() bool {
	return r.Status == RecordStatusActive
}

// CanDeactivate checks if the record can transition to inactive.
// Returns an error if the transition is not allowed.
// Use with ApplyDeactivation in Execute callbacks for proper separation of concerns.
func (r *InstanceRecord) CanDeactivate() error {
	if !r.Status.CanTransitionTo(RecordStatusInactive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "instance is already inactive")
	}
	return nil
}

// ApplyDeactivation transitions the record to inactive status.
// Call CanDeactivate first to validate the transition.
func (r *InstanceRecord) ApplyDeactivation(now time.Time) {
	r.Status = RecordStatusInactive
	r.UpdatedAt = now
}

// Info projects the record into its wire answer shape.
func (r *InstanceRecord) Info() spawn.InstanceInfo {
	return spawn.InstanceInfo{
		Identity: r.Identity,
		Label:    r.Label,
	}
}
