package service

import (
	"context"
	"errors"
	"time"

	"hatchery/contracts/spawn"
	"hatchery/internal/audit"
	"hatchery/internal/factory/models"
	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/platform/sentinel"
	"hatchery/pkg/requestcontext"
)

// Execute dispatches one state-changing message. The sender identity is
// stamped by the transport, never taken from the payload. The returned
// instruction, when non-nil, is for the platform outbox: it tells the
// platform to spawn a new instance and is not part of the caller's
// answer.
//
// Execute is one atomic unit: it either applies the whole operation or
// fails with the stores untouched.
func (s *Service) Execute(ctx context.Context, sender spawn.Address, msg spawn.ExecuteMsg) (spawn.ExecuteAnswer, *spawn.Instruction, error) {
	if err := msg.Validate(); err != nil {
		return spawn.ExecuteAnswer{}, nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed execute message")
	}
	if sender.IsZero() {
		return spawn.ExecuteAnswer{}, nil, dErrors.New(dErrors.CodeUnauthorized, "sender identity is required")
	}

	s.tx.Lock()
	defer s.tx.Unlock()

	start := time.Now()
	defer s.observeExecute(start)

	ctx, span := s.tracer.Start(ctx, "factory.execute")
	defer span.End()

	switch {
	case msg.CreateInstance != nil:
		return s.createInstance(ctx, sender, msg.CreateInstance)
	case msg.RegisterInstance != nil:
		answer, err := s.registerInstance(ctx, sender, msg.RegisterInstance)
		return answer, nil, err
	case msg.DeactivateInstance != nil:
		answer, err := s.deactivateInstance(ctx, sender, msg.DeactivateInstance)
		return answer, nil, err
	case msg.CreateViewingKey != nil:
		answer, err := s.createViewingKey(ctx, sender, msg.CreateViewingKey)
		return answer, nil, err
	case msg.SetViewingKey != nil:
		answer, err := s.setViewingKey(ctx, sender, msg.SetViewingKey)
		return answer, nil, err
	case msg.SetTemplate != nil:
		answer, err := s.setTemplate(ctx, sender, msg.SetTemplate)
		return answer, nil, err
	default:
		answer, err := s.setStopped(ctx, sender, msg.SetStopped)
		return answer, nil, err
	}
}

// createInstance mints a one-time password and hands back the spawn
// instruction. The pending slot is overwritten: an earlier password
// that was never presented stops authenticating here, with no other
// bookkeeping.
func (s *Service) createInstance(ctx context.Context, sender spawn.Address, msg *spawn.CreateInstance) (spawn.ExecuteAnswer, *spawn.Instruction, error) {
	config, err := s.config(ctx)
	if err != nil {
		return spawn.ExecuteAnswer{}, nil, err
	}
	if err := config.CanCreate(); err != nil {
		return spawn.ExecuteAnswer{}, nil, dErrors.New(dErrors.CodeConflict, "registry is stopped")
	}
	if msg.Label == "" {
		return spawn.ExecuteAnswer{}, nil, dErrors.New(dErrors.CodeValidation, "label is required")
	}
	if msg.Owner.IsZero() {
		return spawn.ExecuteAnswer{}, nil, dErrors.New(dErrors.CodeValidation, "owner is required")
	}

	secret, err := s.advance(ctx, sender, msg.Entropy)
	if err != nil {
		return spawn.ExecuteAnswer{}, nil, err
	}
	password := spawn.PasswordFromBytes([spawn.PasswordLen]byte(secret))

	pending := &models.PendingRegistration{
		Password:  password,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.state.SavePending(ctx, pending); err != nil {
		return spawn.ExecuteAnswer{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save pending registration")
	}

	instruction := &spawn.Instruction{
		Factory:     s.identity,
		Template:    config.Template,
		Label:       msg.Label,
		Password:    password,
		Owner:       msg.Owner,
		Count:       msg.Count,
		Description: msg.Description,
	}

	s.incCreated()
	s.audit.emit(ctx, audit.Event{
		Action: audit.ActionInstanceCreated,
		Actor:  sender,
		Owner:  msg.Owner,
		Label:  msg.Label,
	})
	s.logger.InfoContext(ctx, "instance creation dispatched",
		"request_id", requestcontext.RequestID(ctx),
		"owner", msg.Owner,
		"label", msg.Label,
	)

	return statusOK("instance creation dispatched"), instruction, nil
}

// registerInstance admits the sender if it presents the pending
// password. Validation happens before any mutation so a rejected
// attempt leaves the slot and the indices exactly as they were.
func (s *Service) registerInstance(ctx context.Context, sender spawn.Address, msg *spawn.RegisterInstance) (spawn.ExecuteAnswer, error) {
	pending, err := s.state.LoadPending(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return spawn.ExecuteAnswer{}, s.rejectRegistration(ctx, sender, msg)
		}
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pending registration")
	}
	if !pending.Password.Equal(msg.Instance.Password) {
		return spawn.ExecuteAnswer{}, s.rejectRegistration(ctx, sender, msg)
	}

	record, err := models.NewInstanceRecord(
		spawn.ServiceInfo{Address: sender, CodeHash: msg.Instance.CodeHash},
		msg.Instance.Label,
		msg.Owner,
		requestcontext.Now(ctx),
	)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}

	// The sender address is platform-minted and fresh, so an existing
	// record under it means corrupted state, not a replay.
	if _, err := s.records.Find(ctx, sender); err == nil {
		return spawn.ExecuteAnswer{}, dErrors.New(dErrors.CodeInvariantViolation, "address already holds a record")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check record")
	}

	// Point of no return: consume the slot, then commit the record and
	// both active index memberships.
	if err := s.state.ClearPending(ctx); err != nil {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume pending registration")
	}
	if err := s.records.Create(ctx, record); err != nil {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save record")
	}
	if err := s.indices.Insert(ctx, models.GlobalIndex(models.RecordStatusActive), sender); err != nil {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index record")
	}
	if err := s.indices.Insert(ctx, models.OwnerIndex(models.RecordStatusActive, msg.Owner), sender); err != nil {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index record")
	}

	s.incRegistered()
	s.audit.emit(ctx, audit.Event{
		Action:  audit.ActionInstanceRegistered,
		Actor:   sender,
		Subject: sender,
		Owner:   msg.Owner,
		Label:   msg.Instance.Label,
	})
	s.logger.InfoContext(ctx, "instance registered",
		"request_id", requestcontext.RequestID(ctx),
		"instance", sender,
		"owner", msg.Owner,
	)

	return statusOK("instance registered"), nil
}

// rejectRegistration is the single failure path for a bad or consumed
// password. The message never says which of the two it was.
func (s *Service) rejectRegistration(ctx context.Context, sender spawn.Address, msg *spawn.RegisterInstance) error {
	s.incRejected()
	s.audit.emit(ctx, audit.Event{
		Action:  audit.ActionRegistrationRejected,
		Actor:   sender,
		Subject: sender,
		Owner:   msg.Owner,
	})
	s.logger.WarnContext(ctx, "registration rejected",
		"request_id", requestcontext.RequestID(ctx),
		"instance", sender,
	)
	return dErrors.New(dErrors.CodeUnauthorized, "failed to authenticate registration")
}

// deactivateInstance retires the sending instance. Trust here rests
// entirely on the platform-stamped sender identity; there is no
// password re-check, so a transport that allows sender spoofing allows
// unauthorized deactivation claims.
func (s *Service) deactivateInstance(ctx context.Context, sender spawn.Address, msg *spawn.DeactivateInstance) (spawn.ExecuteAnswer, error) {
	active, err := s.indices.Contains(ctx, models.GlobalIndex(models.RecordStatusActive), sender)
	if err != nil {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check index")
	}
	if !active {
		return spawn.ExecuteAnswer{}, dErrors.New(dErrors.CodeConflict, "instance is already inactive")
	}

	record, err := s.records.Execute(ctx, sender,
		func(r *models.InstanceRecord) error {
			if !msg.Owner.IsZero() && r.Owner != msg.Owner {
				return dErrors.New(dErrors.CodeForbidden, "owner does not match the registered instance")
			}
			if err := r.CanDeactivate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "instance is already inactive")
			}
			return nil
		},
		func(r *models.InstanceRecord) {
			r.ApplyDeactivation(requestcontext.Now(ctx))
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "active index references a missing record")
		}
		return spawn.ExecuteAnswer{}, err
	}

	owner := record.Owner
	moves := []struct {
		op  func(context.Context, models.IndexKey, spawn.Address) error
		key models.IndexKey
	}{
		{s.indices.Remove, models.GlobalIndex(models.RecordStatusActive)},
		{s.indices.Insert, models.GlobalIndex(models.RecordStatusInactive)},
		{s.indices.Remove, models.OwnerIndex(models.RecordStatusActive, owner)},
		{s.indices.Insert, models.OwnerIndex(models.RecordStatusInactive, owner)},
	}
	for _, move := range moves {
		if err := move.op(ctx, move.key, sender); err != nil {
			return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to move index membership")
		}
	}

	s.incDeactivated()
	s.audit.emit(ctx, audit.Event{
		Action:  audit.ActionInstanceDeactivated,
		Actor:   sender,
		Subject: sender,
		Owner:   owner,
		Label:   record.Label,
	})
	s.logger.InfoContext(ctx, "instance deactivated",
		"request_id", requestcontext.RequestID(ctx),
		"instance", sender,
		"owner", owner,
	)

	return statusOK("instance deactivated"), nil
}

func (s *Service) createViewingKey(ctx context.Context, sender spawn.Address, msg *spawn.CreateViewingKey) (spawn.ExecuteAnswer, error) {
	secret, err := s.advance(ctx, sender, msg.Entropy)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}

	key, err := s.keys.Create(ctx, sender, secret)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}

	s.incKeyWritten()
	s.audit.emit(ctx, audit.Event{
		Action:  audit.ActionViewingKeyWritten,
		Actor:   sender,
		Subject: sender,
	})

	return spawn.ExecuteAnswer{ViewingKey: &spawn.ViewingKeyAnswer{Key: key}}, nil
}

func (s *Service) setViewingKey(ctx context.Context, sender spawn.Address, msg *spawn.SetViewingKey) (spawn.ExecuteAnswer, error) {
	if err := s.keys.Set(ctx, sender, msg.Key); err != nil {
		return spawn.ExecuteAnswer{}, err
	}

	s.incKeyWritten()
	s.audit.emit(ctx, audit.Event{
		Action:  audit.ActionViewingKeyWritten,
		Actor:   sender,
		Subject: sender,
	})

	return spawn.ExecuteAnswer{ViewingKey: &spawn.ViewingKeyAnswer{Key: msg.Key}}, nil
}

func (s *Service) setTemplate(ctx context.Context, sender spawn.Address, msg *spawn.SetTemplate) (spawn.ExecuteAnswer, error) {
	config, err := s.requireAdmin(ctx, sender)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}
	if msg.Template.CodeHash == "" {
		return spawn.ExecuteAnswer{}, dErrors.New(dErrors.CodeValidation, "template code hash is required")
	}

	config.ApplySetTemplate(msg.Template, requestcontext.Now(ctx))
	if err := s.state.SaveConfig(ctx, config); err != nil {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save config")
	}

	s.audit.emit(ctx, audit.Event{
		Action: audit.ActionConfigUpdated,
		Actor:  sender,
		Detail: "template updated",
	})

	return statusOK("template updated"), nil
}

func (s *Service) setStopped(ctx context.Context, sender spawn.Address, msg *spawn.SetStopped) (spawn.ExecuteAnswer, error) {
	config, err := s.requireAdmin(ctx, sender)
	if err != nil {
		return spawn.ExecuteAnswer{}, err
	}

	config.ApplySetStopped(msg.Stop, requestcontext.Now(ctx))
	if err := s.state.SaveConfig(ctx, config); err != nil {
		return spawn.ExecuteAnswer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save config")
	}

	detail := "creation resumed"
	if msg.Stop {
		detail = "creation stopped"
	}
	s.audit.emit(ctx, audit.Event{
		Action: audit.ActionConfigUpdated,
		Actor:  sender,
		Detail: detail,
	})

	return statusOK(detail), nil
}

func (s *Service) requireAdmin(ctx context.Context, sender spawn.Address) (*models.Config, error) {
	config, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if !config.IsAdmin(sender) {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin authority required")
	}
	return config, nil
}

func statusOK(message string) spawn.ExecuteAnswer {
	return spawn.ExecuteAnswer{Status: &spawn.StatusAnswer{
		Status:  spawn.StatusSuccess,
		Message: &message,
	}}
}
