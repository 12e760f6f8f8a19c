// Package runtime is the in-process rendition of the platform contract
// the registry is written against: minted service addresses, sender
// identities stamped by the transport, one atomic transaction per
// delivered message, and an asynchronous outbox between transactions.
//
// The create/register handshake rides on the outbox. A spawn
// instruction and the registration callback it triggers are separate
// queued deliveries, so the two halves of the handshake never share a
// call stack; a queued delivery can be dropped to model an instance
// that never calls back.
//
// Trust note, deliberate: the bus stamps sender addresses itself, and
// the factory's deactivation path relies on that stamp alone. Any
// transport that lets callers forge a sender can forge deactivation
// claims; see the factory service for the matching note.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
)

// Coordinator is the factory as the platform sees it.
type Coordinator interface {
	Bind(identity spawn.ServiceInfo)
	Execute(ctx context.Context, sender spawn.Address, msg spawn.ExecuteMsg) (spawn.ExecuteAnswer, *spawn.Instruction, error)
	Query(ctx context.Context, msg spawn.QueryMsg) (spawn.QueryAnswer, error)
}

// Worker is a spawned instance as the platform sees it.
type Worker interface {
	Execute(ctx context.Context, sender spawn.Address, msg spawn.InstanceMsg) (spawn.ExecuteAnswer, *spawn.ExecuteMsg, error)
	Query(ctx context.Context, msg spawn.InstanceQuery) (spawn.InstanceQueryAnswer, error)
}

// Spawner builds a worker at its freshly minted identity from a spawn
// instruction, returning the worker and its registration callback.
type Spawner func(self spawn.ServiceInfo, instruction *spawn.Instruction) (Worker, spawn.ExecuteMsg, error)

// Envelope is one queued delivery. Exactly one payload field is set.
type Envelope struct {
	// From is the platform-stamped sender identity.
	From spawn.Address
	// Instruction orders the platform to spawn a new instance.
	Instruction *spawn.Instruction
	// FactoryMsg is a message bound for the factory.
	FactoryMsg *spawn.ExecuteMsg
}

// Bus connects one factory and its instances.
type Bus struct {
	mu      sync.Mutex
	factory Coordinator
	self    spawn.ServiceInfo
	spawner Spawner
	workers map[spawn.Address]Worker
	outbox  []Envelope
	logger  *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New places the factory at a minted address and wires the spawner
// used for instruction deliveries.
func New(factory Coordinator, factoryCodeHash string, spawner Spawner, opts ...Option) (*Bus, error) {
	if factory == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if spawner == nil {
		return nil, fmt.Errorf("spawner is required")
	}

	bus := &Bus{
		factory: factory,
		self:    spawn.ServiceInfo{Address: mintAddress(), CodeHash: factoryCodeHash},
		spawner: spawner,
		workers: make(map[spawn.Address]Worker),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(bus)
		}
	}

	factory.Bind(bus.self)
	return bus, nil
}

func mintAddress() spawn.Address {
	return spawn.Address("svc-" + uuid.NewString())
}

// FactoryIdentity returns the factory's platform identity.
func (b *Bus) FactoryIdentity() spawn.ServiceInfo {
	return b.self
}

// ExecuteFactory delivers one execute message to the factory as the
// given sender. A returned spawn instruction goes onto the outbox; it
// is not part of the caller's transaction.
func (b *Bus) ExecuteFactory(ctx context.Context, sender spawn.Address, msg spawn.ExecuteMsg) (spawn.ExecuteAnswer, error) {
	answer, instruction, err := b.factory.Execute(ctx, sender, msg)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}
	if instruction != nil {
		b.enqueue(Envelope{From: b.self.Address, Instruction: instruction})
	}
	return answer, nil
}

// QueryFactory delivers one read-only message to the factory.
func (b *Bus) QueryFactory(ctx context.Context, msg spawn.QueryMsg) (spawn.QueryAnswer, error) {
	return b.factory.Query(ctx, msg)
}

// ExecuteInstance delivers one execute message to a spawned instance.
// A returned factory notification goes onto the outbox.
func (b *Bus) ExecuteInstance(ctx context.Context, sender spawn.Address, target spawn.Address, msg spawn.InstanceMsg) (spawn.ExecuteAnswer, error) {
	worker, err := b.worker(target)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}

	answer, notify, err := worker.Execute(ctx, sender, msg)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}
	if notify != nil {
		b.enqueue(Envelope{From: target, FactoryMsg: notify})
	}
	return answer, nil
}

// QueryInstance delivers one read-only message to a spawned instance.
func (b *Bus) QueryInstance(ctx context.Context, target spawn.Address, msg spawn.InstanceQuery) (spawn.InstanceQueryAnswer, error) {
	worker, err := b.worker(target)
	if err != nil {
		return spawn.InstanceQueryAnswer{}, err
	}
	return worker.Query(ctx, msg)
}

// Query implements the per-call resolution instances use to reach the
// factory. Only the factory identity resolves; instances have no
// business querying each other.
func (b *Bus) Query(ctx context.Context, target spawn.ServiceInfo, msg spawn.QueryMsg) (spawn.QueryAnswer, error) {
	if target.Address != b.self.Address {
		return spawn.QueryAnswer{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown query target %s", target.Address)
	}
	return b.factory.Query(ctx, msg)
}

func (b *Bus) worker(addr spawn.Address) (Worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	worker, ok := b.workers[addr]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no instance at %s", addr)
	}
	return worker, nil
}

func (b *Bus) enqueue(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbox = append(b.outbox, env)
}

// Enqueue places an envelope on the outbox directly. Tests use it to
// replay deliveries the protocol itself would only send once.
func (b *Bus) Enqueue(env Envelope) {
	b.enqueue(env)
}

// Pending reports the number of queued deliveries.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outbox)
}

// DropNext discards the next queued delivery, modelling an instance
// that never comes up or a callback that never arrives.
func (b *Bus) DropNext() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.outbox) == 0 {
		return false
	}
	b.outbox = b.outbox[1:]
	return true
}

// Step delivers the next queued envelope as its own transaction.
// It reports whether anything was delivered; delivery errors are
// returned after the envelope is consumed, mirroring a failed
// transaction on the receiving side.
func (b *Bus) Step(ctx context.Context) (bool, error) {
	b.mu.Lock()
	if len(b.outbox) == 0 {
		b.mu.Unlock()
		return false, nil
	}
	env := b.outbox[0]
	b.outbox = b.outbox[1:]
	b.mu.Unlock()

	return true, b.deliver(ctx, env)
}

// Drain delivers queued envelopes until the outbox is empty or a
// delivery fails.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		delivered, err := b.Step(ctx)
		if err != nil {
			return err
		}
		if !delivered {
			return nil
		}
	}
}

func (b *Bus) deliver(ctx context.Context, env Envelope) error {
	switch {
	case env.Instruction != nil:
		return b.spawnWorker(ctx, env.Instruction)
	case env.FactoryMsg != nil:
		if _, _, err := b.factory.Execute(ctx, env.From, *env.FactoryMsg); err != nil {
			b.logger.WarnContext(ctx, "factory delivery failed",
				"sender", env.From,
				"error", err,
			)
			return err
		}
		return nil
	default:
		return fmt.Errorf("empty envelope")
	}
}

// spawnWorker executes one spawn instruction: mint the address, build
// the worker, and queue its registration callback for a later
// transaction.
func (b *Bus) spawnWorker(ctx context.Context, instruction *spawn.Instruction) error {
	self := instruction.Template.ToServiceInfo(mintAddress())

	worker, register, err := b.spawner(self, instruction)
	if err != nil {
		return fmt.Errorf("spawn instance: %w", err)
	}

	b.mu.Lock()
	b.workers[self.Address] = worker
	b.mu.Unlock()

	b.enqueue(Envelope{From: self.Address, FactoryMsg: &register})

	b.logger.InfoContext(ctx, "instance spawned",
		"instance", self.Address,
		"owner", instruction.Owner,
	)
	return nil
}
