package service

import (
	"context"
	"errors"
	"time"

	"hatchery/contracts/spawn"
	"hatchery/internal/factory/models"
	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/platform/sentinel"
)

// viewingKeyErrMessage is the one answer every failed list-mine gets.
// It deliberately does not separate a wrong key from a never-set one.
const viewingKeyErrMessage = "wrong viewing key for this address or viewing key not set"

// Query dispatches one read-only message. Queries carry their own
// credentials (viewing keys) in the payload, so no sender identity is
// involved.
func (s *Service) Query(ctx context.Context, msg spawn.QueryMsg) (spawn.QueryAnswer, error) {
	if err := msg.Validate(); err != nil {
		return spawn.QueryAnswer{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed query message")
	}

	s.tx.Lock()
	defer s.tx.Unlock()

	start := time.Now()
	defer s.observeQuery(start)

	ctx, span := s.tracer.Start(ctx, "factory.query")
	defer span.End()

	switch {
	case msg.ListActive != nil:
		return s.listActive(ctx, msg.ListActive)
	case msg.ListInactive != nil:
		return s.listInactive(ctx, msg.ListInactive)
	case msg.IsKeyValid != nil:
		return s.isKeyValid(ctx, msg.IsKeyValid)
	default:
		return s.listMine(ctx, msg.ListMine)
	}
}

func (s *Service) listActive(ctx context.Context, msg *spawn.ListActive) (spawn.QueryAnswer, error) {
	infos, err := s.listGlobal(ctx, models.RecordStatusActive, models.NewPage(msg.StartPage, msg.PageSize))
	if err != nil {
		return spawn.QueryAnswer{}, err
	}
	return spawn.QueryAnswer{ListActive: &spawn.ListActiveAnswer{Active: infos}}, nil
}

func (s *Service) listInactive(ctx context.Context, msg *spawn.ListInactive) (spawn.QueryAnswer, error) {
	infos, err := s.listGlobal(ctx, models.RecordStatusInactive, models.NewPage(msg.StartPage, msg.PageSize))
	if err != nil {
		return spawn.QueryAnswer{}, err
	}
	return spawn.QueryAnswer{ListInactive: &spawn.ListInactiveAnswer{Inactive: infos}}, nil
}

func (s *Service) listGlobal(ctx context.Context, status models.RecordStatus, page models.Page) ([]spawn.InstanceInfo, error) {
	addrs, err := s.indices.Page(ctx, models.GlobalIndex(status), page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to page index")
	}
	return s.resolve(ctx, addrs)
}

func (s *Service) isKeyValid(ctx context.Context, msg *spawn.IsKeyValid) (spawn.QueryAnswer, error) {
	valid, err := s.keys.Check(ctx, msg.Address, msg.ViewingKey)
	if err != nil {
		return spawn.QueryAnswer{}, err
	}
	return spawn.QueryAnswer{IsKeyValid: &spawn.IsKeyValidAnswer{IsValid: valid}}, nil
}

// listMine authenticates first and reveals nothing on failure: the
// answer for a bad key is the same whether the owner has zero instances
// or hundreds, and whether a key was ever set.
func (s *Service) listMine(ctx context.Context, msg *spawn.ListMine) (spawn.QueryAnswer, error) {
	filter := spawn.FilterAll
	if msg.Filter != nil {
		filter = *msg.Filter
	}
	if !filter.IsValid() {
		return spawn.QueryAnswer{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown filter %q", filter)
	}

	valid, err := s.keys.Check(ctx, msg.Address, msg.ViewingKey)
	if err != nil {
		return spawn.QueryAnswer{}, err
	}
	if !valid {
		return spawn.QueryAnswer{
			ViewingKeyError: &spawn.ViewingKeyErrorAnswer{Error: viewingKeyErrMessage},
		}, nil
	}

	page := models.NewPage(msg.StartPage, msg.PageSize)
	answer := &spawn.ListMineAnswer{}

	if filter == spawn.FilterActive || filter == spawn.FilterAll {
		infos, err := s.listOwner(ctx, models.RecordStatusActive, msg.Address, page)
		if err != nil {
			return spawn.QueryAnswer{}, err
		}
		answer.Active = &infos
	}
	if filter == spawn.FilterInactive || filter == spawn.FilterAll {
		infos, err := s.listOwner(ctx, models.RecordStatusInactive, msg.Address, page)
		if err != nil {
			return spawn.QueryAnswer{}, err
		}
		answer.Inactive = &infos
	}

	return spawn.QueryAnswer{ListMine: answer}, nil
}

func (s *Service) listOwner(ctx context.Context, status models.RecordStatus, owner spawn.Address, page models.Page) ([]spawn.InstanceInfo, error) {
	addrs, err := s.indices.Page(ctx, models.OwnerIndex(status, owner), page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to page index")
	}
	return s.resolve(ctx, addrs)
}

// resolve maps index members to their records. A member without a
// record breaks the core invariant, so the whole query aborts instead
// of papering over the hole.
func (s *Service) resolve(ctx context.Context, addrs []spawn.Address) ([]spawn.InstanceInfo, error) {
	infos := make([]spawn.InstanceInfo, 0, len(addrs))
	if len(addrs) == 0 {
		return infos, nil
	}

	records, err := s.records.FindMany(ctx, addrs)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "index references a missing record")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load records")
	}

	for _, record := range records {
		infos = append(infos, record.Info())
	}
	return infos, nil
}
