// Package ward manages ULB and ward reference data.
package ward

import (
	"context"
	"strings"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/access"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/scope"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/ward/entity"
)

// Repository is implemented by repo.Repo.
type Repository interface {
	CreateULB(ctx context.Context, u *entity.ULB) error
	GetULB(ctx context.Context, id int64) (*entity.ULB, error)
	CreateWard(ctx context.Context, w *entity.Ward) error
	GetWard(ctx context.Context, id int64) (*entity.Ward, error)
	ListWards(ctx context.Context, sc scope.Scope, ulbID *int64) ([]entity.Ward, error)
}

// Service encapsulates reference-data rules and depends on a repo.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

func (s *Service) CreateULB(ctx context.Context, name, code string) (*entity.ULB, error) {
	name, code = strings.TrimSpace(name), strings.ToUpper(strings.TrimSpace(code))
	if name == "" || code == "" {
		return nil, apperr.Validation("", "name and code are required")
	}
	u := &entity.ULB{Name: name, Code: code}
	if err := s.repo.CreateULB(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) CreateWard(ctx context.Context, ulbID int64, number, name string) (*entity.Ward, error) {
	number, name = strings.TrimSpace(number), strings.TrimSpace(name)
	if number == "" {
		return nil, apperr.Validation("", "ward number is required")
	}
	if _, err := s.repo.GetULB(ctx, ulbID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("", "ulb does not exist").WithDetail("ulbId", ulbID)
		}
		return nil, err
	}
	w := &entity.Ward{UlbID: &ulbID, Number: number, Name: name}
	if err := s.repo.CreateWard(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetWard is the lookup used by the staff and task validators.
func (s *Service) GetWard(ctx context.Context, id int64) (*entity.Ward, error) {
	return s.repo.GetWard(ctx, id)
}

// List returns the caller's wards.
func (s *Service) List(ctx context.Context, rc access.RequestContext, ulbID *int64) ([]entity.Ward, error) {
	return s.repo.ListWards(ctx, rc.Scope, ulbID)
}
