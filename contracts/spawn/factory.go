package spawn

import "errors"

// ErrAmbiguousMessage rejects envelopes that set zero or multiple
// variants. Dispatch never sees such a message.
var ErrAmbiguousMessage = errors.New("message must set exactly one variant")

// ExecuteMsg is the closed union of state-changing factory operations.
// Exactly one variant is set per message.
type ExecuteMsg struct {
	CreateInstance     *CreateInstance     `json:"create_instance,omitempty"`
	RegisterInstance   *RegisterInstance   `json:"register_instance,omitempty"`
	DeactivateInstance *DeactivateInstance `json:"deactivate_instance,omitempty"`
	CreateViewingKey   *CreateViewingKey   `json:"create_viewing_key,omitempty"`
	SetViewingKey      *SetViewingKey      `json:"set_viewing_key,omitempty"`
	SetTemplate        *SetTemplate        `json:"set_template,omitempty"`
	SetStopped         *SetStopped         `json:"set_stopped,omitempty"`
}

// Validate enforces the exactly-one-variant envelope invariant.
func (m ExecuteMsg) Validate() error {
	n := 0
	if m.CreateInstance != nil {
		n++
	}
	if m.RegisterInstance != nil {
		n++
	}
	if m.DeactivateInstance != nil {
		n++
	}
	if m.CreateViewingKey != nil {
		n++
	}
	if m.SetViewingKey != nil {
		n++
	}
	if m.SetTemplate != nil {
		n++
	}
	if m.SetStopped != nil {
		n++
	}
	if n != 1 {
		return ErrAmbiguousMessage
	}
	return nil
}

// CreateInstance asks the factory to spawn a new instance.
type CreateInstance struct {
	// Label for the new instance.
	Label string `json:"label"`
	// Entropy the caller contributes to password generation.
	Entropy string `json:"entropy"`
	// Owner the instance will belong to.
	Owner Address `json:"owner"`
	// Count seeds the instance's counter payload.
	Count int32 `json:"count"`
	// Description is optional free-form text.
	Description *string `json:"description,omitempty"`
}

// RegisterInfo is what a freshly spawned instance presents when calling
// back: the label it was started with, its own code hash, and the
// one-time password.
type RegisterInfo struct {
	Label    string   `json:"label"`
	CodeHash string   `json:"code_hash"`
	Password Password `json:"password"`
}

// RegisterInstance is the registration callback from a new instance.
// The sender identity is supplied by the platform, not the payload.
type RegisterInstance struct {
	Owner    Address      `json:"owner"`
	Instance RegisterInfo `json:"instance"`
}

// DeactivateInstance tells the factory the sending instance went
// inactive. Authenticated by sender identity alone; there is no
// password re-check at this step.
type DeactivateInstance struct {
	Owner Address `json:"owner"`
}

// CreateViewingKey mints a fresh viewing key for the sender.
type CreateViewingKey struct {
	Entropy string `json:"entropy"`
}

// SetViewingKey installs a caller-chosen viewing key for the sender.
type SetViewingKey struct {
	Key ViewingKey `json:"key"`
	// Padding lets callers hide the key length inside a fixed-size
	// message body. Ignored by the factory.
	Padding *string `json:"padding,omitempty"`
}

// SetTemplate replaces the instance template version. Admin only.
type SetTemplate struct {
	Template TemplateVersion `json:"template"`
}

// SetStopped starts or stops instance creation. Admin only.
type SetStopped struct {
	Stop bool `json:"stop"`
}

// QueryMsg is the closed union of read-only factory queries.
type QueryMsg struct {
	ListMine     *ListMine     `json:"list_mine,omitempty"`
	ListActive   *ListActive   `json:"list_active,omitempty"`
	ListInactive *ListInactive `json:"list_inactive,omitempty"`
	IsKeyValid   *IsKeyValid   `json:"is_key_valid,omitempty"`
}

// Validate enforces the exactly-one-variant envelope invariant.
func (m QueryMsg) Validate() error {
	n := 0
	if m.ListMine != nil {
		n++
	}
	if m.ListActive != nil {
		n++
	}
	if m.ListInactive != nil {
		n++
	}
	if m.IsKeyValid != nil {
		n++
	}
	if n != 1 {
		return ErrAmbiguousMessage
	}
	return nil
}

// ListMine lists the instances owned by Address, authenticated by its
// viewing key.
type ListMine struct {
	Address    Address    `json:"address"`
	ViewingKey ViewingKey `json:"viewing_key"`
	// Filter defaults to all when unset.
	Filter *Filter `json:"filter,omitempty"`
	// StartPage defaults to 0 when unset.
	StartPage *uint32 `json:"start_page,omitempty"`
	// PageSize defaults to the factory's page size when unset.
	PageSize *uint32 `json:"page_size,omitempty"`
}

// ListActive lists all active instances in registration order.
type ListActive struct {
	StartPage *uint32 `json:"start_page,omitempty"`
	PageSize  *uint32 `json:"page_size,omitempty"`
}

// ListInactive lists all inactive instances in deactivation order.
type ListInactive struct {
	StartPage *uint32 `json:"start_page,omitempty"`
	PageSize  *uint32 `json:"page_size,omitempty"`
}

// IsKeyValid authenticates an address/viewing-key pair. Instances call
// this to delegate viewing-key validation to the factory.
type IsKeyValid struct {
	Address    Address    `json:"address"`
	ViewingKey ViewingKey `json:"viewing_key"`
}

// ResponseStatus reports execute success or failure.
type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusFailure ResponseStatus = "failure"
)

// ExecuteAnswer is the closed union of execute responses.
type ExecuteAnswer struct {
	Status     *StatusAnswer     `json:"status,omitempty"`
	ViewingKey *ViewingKeyAnswer `json:"viewing_key,omitempty"`
}

// StatusAnswer is the generic execute acknowledgement.
type StatusAnswer struct {
	Status  ResponseStatus `json:"status"`
	Message *string        `json:"message,omitempty"`
}

// ViewingKeyAnswer returns the key that is now in effect.
type ViewingKeyAnswer struct {
	Key ViewingKey `json:"key"`
}

// QueryAnswer is the closed union of query responses.
type QueryAnswer struct {
	ListMine        *ListMineAnswer        `json:"list_mine,omitempty"`
	ListActive      *ListActiveAnswer      `json:"list_active,omitempty"`
	ListInactive    *ListInactiveAnswer    `json:"list_inactive,omitempty"`
	IsKeyValid      *IsKeyValidAnswer      `json:"is_key_valid,omitempty"`
	ViewingKeyError *ViewingKeyErrorAnswer `json:"viewing_key_error,omitempty"`
}

// ListMineAnswer returns the owner's instances. A nil slice means the
// category was not requested; an empty slice means it was requested and
// is empty. The two are distinct on the wire.
type ListMineAnswer struct {
	Active   *[]InstanceInfo `json:"active,omitempty"`
	Inactive *[]InstanceInfo `json:"inactive,omitempty"`
}

// ListActiveAnswer returns the global active listing.
type ListActiveAnswer struct {
	Active []InstanceInfo `json:"active"`
}

// ListInactiveAnswer returns the global inactive listing.
type ListInactiveAnswer struct {
	Inactive []InstanceInfo `json:"inactive"`
}

// IsKeyValidAnswer reports whether the address/key pair authenticated.
type IsKeyValidAnswer struct {
	IsValid bool `json:"is_valid"`
}

// ViewingKeyErrorAnswer is the single authentication-failure answer for
// viewing-key queries. Its message never distinguishes a wrong key from
// a missing one.
type ViewingKeyErrorAnswer struct {
	Error string `json:"error"`
}
