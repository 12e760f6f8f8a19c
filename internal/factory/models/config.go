package models

import (
	"time"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
)

// Config is the registry's operating configuration singleton.
//
// Invariants:
//   - Template names the code version every new instance is spawned from
//   - Admin is the only address allowed to change Template or Stopped
//   - Stopped suspends instance creation; registration of an already
//     spawned instance and all reads keep working
type Config struct {
	Template  spawn.TemplateVersion `json:"template"`
	Admin     spawn.Address         `json:"admin"`
	Stopped   bool                  `json:"stopped"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewConfig constructs the boot configuration.
func NewConfig(template spawn.TemplateVersion, admin spawn.Address, now time.Time) (*Config, error) {
	if admin.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "admin address cannot be empty")
	}
	if template.CodeHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template code hash cannot be empty")
	}
	return &Config{
		Template:  template,
		Admin:     admin,
		Stopped:   false,
		UpdatedAt: now,
	}, nil
}

// IsAdmin reports whether addr holds the admin authority.
func (c *Config) IsAdmin(addr spawn.Address) bool {
	return !addr.IsZero() && addr == c.Admin
}

// CanCreate checks that the registry accepts new instances.
// Use with the creation path; reads are never gated on Stopped.
func (c *Config) CanCreate() error {
	if c.Stopped {
		return dErrors.New(dErrors.CodeInvariantViolation, "registry is stopped")
	}
	return nil
}

// ApplySetStopped records the admin's stop flag. Setting the current
// value again is a no-op, so operators can retry safely.
func (c *Config) ApplySetStopped(stopped bool, now time.Time) {
	c.Stopped = stopped
	c.UpdatedAt = now
}

// ApplySetTemplate swaps the template version used for future spawns.
// Instances already running keep the version they were created with.
func (c *Config) ApplySetTemplate(template spawn.TemplateVersion, now time.Time) {
	c.Template = template
	c.UpdatedAt = now
}

// PendingRegistration is the single-slot handshake state between a
// create and its matching register. The slot holds at most one
// expected password; a new creation overwrites it, which is what
// orphans any instance that never called back.
type PendingRegistration struct {
	Password  spawn.Password `json:"password"`
	CreatedAt time.Time      `json:"created_at"`
}
