package spawn

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Address is a platform-assigned service address. The platform mints it
// at spawn time and stamps it as the sender identity on every delivered
// message; neither side ever chooses its own.
type Address string

func (a Address) IsZero() bool { return a == "" }

func (a Address) String() string { return string(a) }

// TemplateVersion identifies a stored instance template: a platform code
// id plus the hash of its content.
type TemplateVersion struct {
	ID       uint64 `json:"id"`
	CodeHash string `json:"code_hash"`
}

// ServiceInfo is the identity of a live service: its address and the
// hash of the code it runs. It is the only handle the coordinator and
// instances hold on each other; calls are resolved through the platform
// per use, never through a live reference.
type ServiceInfo struct {
	Address  Address `json:"address"`
	CodeHash string  `json:"code_hash"`
}

// ToServiceInfo binds a template version to the address the platform
// assigned to an instance of it.
func (v TemplateVersion) ToServiceInfo(addr Address) ServiceInfo {
	return ServiceInfo{Address: addr, CodeHash: v.CodeHash}
}

// PasswordLen is the fixed width of a one-time registration password in
// raw bytes.
const PasswordLen = 32

// Password is a single-use 32-byte capability token carried base64url
// encoded. It authenticates exactly one registration callback and is
// never used as an identifier.
type Password string

// PasswordFromBytes encodes raw secret material as a wire password.
func PasswordFromBytes(b [PasswordLen]byte) Password {
	return Password(base64.RawURLEncoding.EncodeToString(b[:]))
}

// Bytes decodes the password back to its fixed-width raw form.
func (p Password) Bytes() ([PasswordLen]byte, error) {
	var out [PasswordLen]byte
	raw, err := base64.RawURLEncoding.DecodeString(string(p))
	if err != nil {
		return out, fmt.Errorf("malformed password: %w", err)
	}
	if len(raw) != PasswordLen {
		return out, fmt.Errorf("malformed password: %d bytes, want %d", len(raw), PasswordLen)
	}
	copy(out[:], raw)
	return out, nil
}

// Equal compares two passwords in constant time. Malformed input
// compares unequal without shortcutting.
func (p Password) Equal(other Password) bool {
	a, errA := p.Bytes()
	b, errB := other.Bytes()
	ok := subtle.ConstantTimeCompare(a[:], b[:]) == 1
	return ok && errA == nil && errB == nil
}

// ViewingKey is an opaque bearer token authenticating read-only queries
// for one identity.
type ViewingKey string

// Filter selects which lifecycle category a listing covers.
type Filter string

const (
	FilterActive   Filter = "active"
	FilterInactive Filter = "inactive"
	FilterAll      Filter = "all"
)

func (f Filter) IsValid() bool {
	switch f {
	case FilterActive, FilterInactive, FilterAll:
		return true
	}
	return false
}

// InstanceInfo is the display form of a registered instance.
type InstanceInfo struct {
	// Identity of the instance service.
	Identity ServiceInfo `json:"identity"`
	// Label the owner chose at spawn time.
	Label string `json:"label"`
}
