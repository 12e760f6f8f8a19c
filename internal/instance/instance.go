// Package instance implements the spawned side of the handshake: a
// worker created from a factory instruction, carrying a counter as its
// business state.
//
// The instance never holds a live reference to the factory. It stores
// the factory's identity from the spawn instruction and resolves it
// through the platform on every delegated call, which is what lets the
// two sides live in different processes.
package instance

import (
	"context"
	"log/slog"
	"sync"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
)

// Status is the instance lifecycle state. Inactive is terminal; there
// is no path back.
type Status string

const (
	StatusCreated  Status = "created"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// authErrMessage answers every failed count query. Like the factory's
// list-mine error, it does not separate "not the owner" from "bad key".
const authErrMessage = "wrong viewing key for this address or viewing key not set"

// Resolver turns a stored service identity into one platform call.
type Resolver interface {
	Query(ctx context.Context, target spawn.ServiceInfo, msg spawn.QueryMsg) (spawn.QueryAnswer, error)
}

// Instance is one spawned worker.
type Instance struct {
	mu sync.Mutex

	self     spawn.ServiceInfo
	factory  spawn.ServiceInfo
	label    string
	owner    spawn.Address
	status   Status
	count    int32
	resolver Resolver
	logger   *slog.Logger
}

// Option configures an Instance.
type Option func(*Instance)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Instance) { i.logger = logger }
}

// New builds the instance from its spawn instruction and returns the
// registration callback for the platform to deliver. The callback is
// fire-and-forget: the instance keeps no pending state and proceeds as
// active whether or not the factory ever accepts it.
func New(self spawn.ServiceInfo, instruction *spawn.Instruction, resolver Resolver, opts ...Option) (*Instance, spawn.ExecuteMsg, error) {
	if instruction == nil {
		return nil, spawn.ExecuteMsg{}, dErrors.New(dErrors.CodeBadRequest, "spawn instruction is required")
	}
	if resolver == nil {
		return nil, spawn.ExecuteMsg{}, dErrors.New(dErrors.CodeBadRequest, "resolver is required")
	}

	inst := &Instance{
		self:     self,
		factory:  instruction.Factory,
		label:    instruction.Label,
		owner:    instruction.Owner,
		status:   StatusCreated,
		count:    instruction.Count,
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(inst)
		}
	}

	register := spawn.ExecuteMsg{
		RegisterInstance: &spawn.RegisterInstance{
			Owner: instruction.Owner,
			Instance: spawn.RegisterInfo{
				Label:    instruction.Label,
				CodeHash: self.CodeHash,
				Password: instruction.Password,
			},
		},
	}

	inst.status = StatusActive
	return inst, register, nil
}

// Identity returns the instance's own platform identity.
func (i *Instance) Identity() spawn.ServiceInfo {
	return i.self
}

// Owner returns the owning address.
func (i *Instance) Owner() spawn.Address {
	return i.owner
}

// Status returns the current lifecycle state.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Execute dispatches one state-changing message. The returned message,
// when non-nil, is a notification for the factory that the platform
// delivers as its own transaction.
func (i *Instance) Execute(ctx context.Context, sender spawn.Address, msg spawn.InstanceMsg) (spawn.ExecuteAnswer, *spawn.ExecuteMsg, error) {
	if err := msg.Validate(); err != nil {
		return spawn.ExecuteAnswer{}, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed instance message")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	switch {
	case msg.Increment != nil:
		answer, err := i.increment(ctx)
		return answer, nil, err
	case msg.Reset != nil:
		answer, err := i.reset(ctx, sender, msg.Reset)
		return answer, nil, err
	default:
		return i.deactivate(ctx, sender)
	}
}

// increment bumps the counter. Anyone may call it, but only while the
// instance is active.
func (i *Instance) increment(_ context.Context) (spawn.ExecuteAnswer, error) {
	if err := i.requireActive(); err != nil {
		return spawn.ExecuteAnswer{}, err
	}
	i.count++
	return statusOK("incremented"), nil
}

// reset sets the counter back to a chosen value. Owner only.
func (i *Instance) reset(_ context.Context, sender spawn.Address, msg *spawn.Reset) (spawn.ExecuteAnswer, error) {
	if sender != i.owner {
		return spawn.ExecuteAnswer{}, dErrors.New(dErrors.CodeForbidden, "only the owner can reset the counter")
	}
	if err := i.requireActive(); err != nil {
		return spawn.ExecuteAnswer{}, err
	}
	i.count = msg.Count
	return statusOK("reset"), nil
}

// deactivate retires the instance and hands back the factory
// notification. The factory trusts the notification's sender identity;
// no password travels with it.
func (i *Instance) deactivate(ctx context.Context, sender spawn.Address) (spawn.ExecuteAnswer, *spawn.ExecuteMsg, error) {
	if sender != i.owner {
		return spawn.ExecuteAnswer{}, nil, dErrors.New(dErrors.CodeForbidden, "only the owner can deactivate the instance")
	}
	if err := i.requireActive(); err != nil {
		return spawn.ExecuteAnswer{}, nil, err
	}

	i.status = StatusInactive
	i.logger.InfoContext(ctx, "instance deactivated",
		"instance", i.self.Address,
		"owner", i.owner,
	)

	notify := &spawn.ExecuteMsg{
		DeactivateInstance: &spawn.DeactivateInstance{Owner: i.owner},
	}
	return statusOK("deactivated"), notify, nil
}

// Query dispatches one read-only message. Reads work in any lifecycle
// state; only mutations gate on Active.
func (i *Instance) Query(ctx context.Context, msg spawn.InstanceQuery) (spawn.InstanceQueryAnswer, error) {
	if err := msg.Validate(); err != nil {
		return spawn.InstanceQueryAnswer{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed instance query")
	}
	return i.getCount(ctx, msg.GetCount)
}

// getCount answers the counter for the owner only, after delegating
// key validation to the factory through a per-call resolved handle.
func (i *Instance) getCount(ctx context.Context, msg *spawn.GetCount) (spawn.InstanceQueryAnswer, error) {
	if msg.Address != i.owner {
		return spawn.InstanceQueryAnswer{}, dErrors.New(dErrors.CodeUnauthorized, authErrMessage)
	}

	answer, err := i.resolver.Query(ctx, i.factory, spawn.QueryMsg{
		IsKeyValid: &spawn.IsKeyValid{Address: msg.Address, ViewingKey: msg.ViewingKey},
	})
	if err != nil {
		return spawn.InstanceQueryAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate viewing key")
	}
	if answer.IsKeyValid == nil || !answer.IsKeyValid.IsValid {
		return spawn.InstanceQueryAnswer{}, dErrors.New(dErrors.CodeUnauthorized, authErrMessage)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return spawn.InstanceQueryAnswer{Count: &spawn.CountAnswer{Count: i.count}}, nil
}

func (i *Instance) requireActive() error {
	if i.status != StatusActive {
		return dErrors.New(dErrors.CodeConflict, "instance is inactive")
	}
	return nil
}

func statusOK(message string) spawn.ExecuteAnswer {
	return spawn.ExecuteAnswer{Status: &spawn.StatusAnswer{
		Status:  spawn.StatusSuccess,
		Message: &message,
	}}
}
