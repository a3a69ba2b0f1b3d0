// Package shop manages assessable shops. A closed shop cannot be assessed.
package shop

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/shop/entity"
	wardentity "github.com/ovaphlow/pitchfork/service-municipal/internal/ward/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

// Repository is implemented by repo.ShopRepo.
type Repository interface {
	Insert(ctx context.Context, s *entity.Shop) error
	Get(ctx context.Context, id int64) (*entity.Shop, error)
	List(ctx context.Context, sc scope.Scope, f entity.Filter) ([]entity.Shop, error)
	Close(ctx context.Context, id int64, at time.Time) (bool, error)
}

type WardLookup interface {
	GetWard(ctx context.Context, id int64) (*wardentity.Ward, error)
}

type Service struct {
	repo   Repository
	wards  WardLookup
	clock  clockwork.Clock
	logger *zap.SugaredLogger
}

func NewService(repo Repository, wards WardLookup, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, wards: wards, clock: clock, logger: logger}
}

type CreateInput struct {
	ShopNumber string  `json:"shopNumber"`
	WardID     int64   `json:"wardId"`
	OwnerName  string  `json:"ownerName"`
	OwnerID    *int64  `json:"ownerId"`
	Address    *string `json:"address"`
}

// Create registers a shop in a ward inside the caller's scope. The ULB is
// taken from the ward.
func (s *Service) Create(ctx context.Context, rc access.RequestContext, in CreateInput) (*entity.Shop, error) {
	number := strings.ToUpper(strings.TrimSpace(in.ShopNumber))
	owner := strings.TrimSpace(in.OwnerName)
	if number == "" || owner == "" {
		return nil, apperr.Validation("", "shopNumber and ownerName are required")
	}
	if err := rc.RequireWard(in.WardID); err != nil {
		return nil, err
	}
	w, err := s.wards.GetWard(ctx, in.WardID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation(apperr.ReasonInvalidWard, "ward does not exist").WithDetail("wardId", in.WardID)
		}
		return nil, err
	}
	sh := &entity.Shop{
		ID:         utilities.NewID(),
		ShopNumber: number,
		WardID:     w.ID,
		UlbID:      w.UlbID,
		OwnerName:  owner,
		OwnerID:    in.OwnerID,
		Address:    in.Address,
		Status:     entity.StatusActive,
	}
	if err := s.repo.Insert(ctx, sh); err != nil {
		return nil, err
	}
	return sh, nil
}

// Get returns a shop to a principal whose scope covers its ward, or to the
// citizen who owns it.
func (s *Service) Get(ctx context.Context, rc access.RequestContext, id int64) (*entity.Shop, error) {
	sh, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rc.Scope.IsDenied() {
		err = rc.RequireOwner(sh.OwnerID)
	} else {
		err = rc.RequireWard(sh.WardID)
	}
	if err != nil {
		return nil, err
	}
	return sh, nil
}

// Lookup is the unscoped read used by the assessment workflow, which applies
// its own scope check.
func (s *Service) Lookup(ctx context.Context, id int64) (*entity.Shop, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, rc access.RequestContext, f entity.Filter) ([]entity.Shop, error) {
	return s.repo.List(ctx, rc.Scope, f)
}

// Close moves a shop to its terminal state.
func (s *Service) Close(ctx context.Context, rc access.RequestContext, id int64) (*entity.Shop, error) {
	sh, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rc.RequireWard(sh.WardID); err != nil {
		return nil, err
	}
	if sh.Closed() {
		return nil, apperr.Precondition(apperr.ReasonSubjectClosed, "shop is already closed")
	}
	now := s.clock.Now().UTC()
	ok, err := s.repo.Close(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Precondition(apperr.ReasonSubjectClosed, "shop is already closed")
	}
	sh.Status, sh.ClosedAt = entity.StatusClosed, &now
	s.logger.Infow("shop closed", "shop_id", id, "by", rc.Principal.PrincipalID())
	return sh, nil
}
