package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
)

// Finder loads a principal descriptor from one identity store. Implementations
// return an apperr NotFound error when the id is unknown.
type Finder interface {
	FindPrincipal(ctx context.Context, id int64) (Principal, error)
}

// Store resolves principals across the generic and staff stores.
type Store struct {
	finders map[Origin]Finder
}

func NewStore(users, staff Finder) *Store {
	return &Store{finders: map[Origin]Finder{OriginUser: users, OriginStaff: staff}}
}

// Lookup searches the hinted store first and falls back to the other one, so
// tokens minted before the origin claim existed still resolve. An empty hint
// is treated as the generic store.
func (s *Store) Lookup(ctx context.Context, id int64, hint Origin) (Principal, error) {
	if hint != OriginStaff {
		hint = OriginUser
	}
	for _, origin := range []Origin{hint, hint.Other()} {
		p, err := s.finders[origin].FindPrincipal(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("lookup %s principal %d: %w", origin, id, err)
		}
	}
	return nil, apperr.NotFound(fmt.Sprintf("principal %d", id))
}
