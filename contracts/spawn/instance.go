package spawn

// Instruction is the spawn instruction the factory emits and the
// platform delivers verbatim to a new instance. The password inside is
// the instance's one shot at registering.
type Instruction struct {
	// Factory identity the instance will call back to.
	Factory ServiceInfo `json:"factory"`
	// Template the platform spawns the instance from.
	Template TemplateVersion `json:"template"`
	// Label for this instance.
	Label string `json:"label"`
	// Password is the one-time registration token.
	Password Password `json:"password"`
	// Owner of the new instance.
	Owner Address `json:"owner"`
	// Count seeds the counter payload.
	Count int32 `json:"count"`
	// Description is optional free-form text.
	Description *string `json:"description,omitempty"`
}

// InstanceMsg is the closed union of state-changing instance operations.
type InstanceMsg struct {
	Increment  *Increment  `json:"increment,omitempty"`
	Reset      *Reset      `json:"reset,omitempty"`
	Deactivate *Deactivate `json:"deactivate,omitempty"`
}

// Validate enforces the exactly-one-variant envelope invariant.
func (m InstanceMsg) Validate() error {
	n := 0
	if m.Increment != nil {
		n++
	}
	if m.Reset != nil {
		n++
	}
	if m.Deactivate != nil {
		n++
	}
	if n != 1 {
		return ErrAmbiguousMessage
	}
	return nil
}

// Increment bumps the counter by one. Anyone may call it.
type Increment struct{}

// Reset sets the counter to Count. Owner only.
type Reset struct {
	Count int32 `json:"count"`
}

// Deactivate retires the instance. Owner only; terminal.
type Deactivate struct{}

// InstanceQuery is the closed union of read-only instance queries.
type InstanceQuery struct {
	GetCount *GetCount `json:"get_count,omitempty"`
}

// Validate enforces the exactly-one-variant envelope invariant.
func (m InstanceQuery) Validate() error {
	if m.GetCount == nil {
		return ErrAmbiguousMessage
	}
	return nil
}

// GetCount reads the counter. Only the owner with a valid viewing key
// (validated against the factory) gets an answer.
type GetCount struct {
	Address    Address    `json:"address"`
	ViewingKey ViewingKey `json:"viewing_key"`
}

// InstanceQueryAnswer is the closed union of instance query responses.
type InstanceQueryAnswer struct {
	Count *CountAnswer `json:"count,omitempty"`
}

// CountAnswer carries the current counter value.
type CountAnswer struct {
	Count int32 `json:"count"`
}
