// Package service implements the registry coordinator.
//
// The coordinator is the long-lived side of the spawn handshake: it
// mints one-time passwords, admits instances that present them, tracks
// every admitted instance through the four address indices, and answers
// the read-only query surface. All of its state lives in injected
// stores; the package holds no globals, so a process can host any
// number of independent registries.
//
// Every Execute and Query runs under one mutex. That mutex is the
// transactional host of the design: two operations never interleave,
// and a failed operation leaves no partial mutation because every
// handler validates completely before it writes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"hatchery/contracts/spawn"
	"hatchery/internal/audit"
	"hatchery/internal/entropy"
	factorymetrics "hatchery/internal/factory/metrics"
	"hatchery/internal/factory/models"
	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/platform/sentinel"
	"hatchery/pkg/requestcontext"
)

// Service is the registry coordinator.
type Service struct {
	state   StateStore
	records RecordStore
	indices IndexStore
	keys    ViewingKeys

	// identity is the coordinator's own platform identity, bound once
	// before the first operation. Spawn instructions carry it so new
	// instances know where to call back.
	identity spawn.ServiceInfo

	// seq counts generator advances. It feeds the entropy material so
	// two advances in the same request-time tick still diverge.
	seq uint64

	logger  *slog.Logger
	metrics *factorymetrics.Metrics
	tracer  trace.Tracer
	audit   *auditEmitter

	// tx serializes every operation; see the package comment.
	tx sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the factory metrics collector.
func WithMetrics(m *factorymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditPublisher routes registry audit events to pub.
func WithAuditPublisher(pub audit.Publisher) Option {
	return func(s *Service) { s.audit.publisher = pub }
}

// New constructs a coordinator over the given stores. The coordinator
// is not usable until Bind and either Init or Reload have run.
func New(state StateStore, records RecordStore, indices IndexStore, keys ViewingKeys, opts ...Option) (*Service, error) {
	if state == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if indices == nil {
		return nil, fmt.Errorf("index store is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("viewing key service is required")
	}

	svc := &Service{
		state:   state,
		records: records,
		indices: indices,
		keys:    keys,
		logger:  slog.Default(),
		tracer:  otel.Tracer("hatchery/factory"),
		audit:   &auditEmitter{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	svc.audit.logger = svc.logger

	return svc, nil
}

// Bind fixes the coordinator's platform identity. The platform calls it
// exactly once, before any message is delivered.
func (s *Service) Bind(identity spawn.ServiceInfo) {
	s.identity = identity
}

// Identity returns the bound platform identity.
func (s *Service) Identity() spawn.ServiceInfo {
	return s.identity
}

// Init writes the boot state of a brand-new registry: the operating
// configuration and the generator seed. bootSeedHex may pin the seed
// for reproducible deployments; when empty, the seed comes from the
// operating system CSPRNG.
func (s *Service) Init(ctx context.Context, template spawn.TemplateVersion, admin spawn.Address, bootSeedHex string) error {
	s.tx.Lock()
	defer s.tx.Unlock()

	config, err := models.NewConfig(template, admin, requestcontext.Now(ctx))
	if err != nil {
		return err
	}

	seed, err := bootSeed(bootSeedHex)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not derive boot seed")
	}

	if err := s.state.SaveConfig(ctx, config); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save config")
	}
	if err := s.state.SaveSeed(ctx, seed); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save seed")
	}

	s.logger.InfoContext(ctx, "registry initialized",
		"admin", admin,
		"template_id", template.ID,
	)
	return nil
}

// Reload verifies that a previously initialized registry is loadable.
// A missing config or seed is a deployment mistake, not a caller error.
func (s *Service) Reload(ctx context.Context) error {
	s.tx.Lock()
	defer s.tx.Unlock()

	if _, err := s.state.LoadConfig(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "registry config not loadable")
	}
	if _, err := s.state.LoadSeed(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "registry seed not loadable")
	}
	return nil
}

func bootSeed(hexSeed string) (entropy.Seed, error) {
	if hexSeed != "" {
		return entropy.SeedFromHex(hexSeed)
	}
	return entropy.NewSeed()
}

// config loads the operating configuration; absence at this point means
// the registry was never initialized.
func (s *Service) config(ctx context.Context) (*models.Config, error) {
	config, err := s.state.LoadConfig(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load config")
	}
	return config, nil
}

// advance moves the generator one step and returns the derived secret.
// The successor seed is persisted before the secret is used anywhere,
// so a crash between the two never replays a secret.
func (s *Service) advance(ctx context.Context, sender spawn.Address, callerEntropy string) (entropy.Secret, error) {
	seed, err := s.state.LoadSeed(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return entropy.Secret{}, dErrors.Wrap(err, dErrors.CodeInternal, "generator seed missing")
		}
		return entropy.Secret{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load seed")
	}

	s.seq++
	next, secret := entropy.Advance(seed, entropy.Material{
		Time:     requestcontext.Now(ctx),
		Sequence: s.seq,
		Sender:   sender,
		Entropy:  callerEntropy,
	})

	if err := s.state.SaveSeed(ctx, next); err != nil {
		return entropy.Secret{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save seed")
	}
	return secret, nil
}
