package dispatch

import (
	"context"

	"dealflow/auth"
	"dealflow/deal"
)

// Service serves the execution-side read model. All reads are tenant-scoped
// and gated on the dispatch-view capability.
type Service struct {
	pool     deal.Querier
	repo     *Repository
	dealRepo *deal.Repository
}

func NewService(pool deal.Querier, repo *Repository, dealRepo *deal.Repository) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	if dealRepo == nil {
		dealRepo = deal.NewRepository()
	}
	return &Service{pool: pool, repo: repo, dealRepo: dealRepo}
}

// ListDeals returns the tenant's dispatch board.
func (s *Service) ListDeals(ctx context.Context, actor auth.Actor) ([]Record, error) {
	if d := deal.Decide(deal.StageDispatched, deal.ActionViewDispatch, actor.Role); !d.Allowed {
		return nil, d.Err()
	}
	return s.repo.ListForCompany(ctx, s.pool, actor.CompanyID)
}

// Detail is one dispatched deal with the full ledger of its locked version.
type Detail struct {
	Record Record
	Items  []deal.LineItem
}

// GetDeal returns one dispatched deal with its line items.
func (s *Service) GetDeal(ctx context.Context, actor auth.Actor, dealID string) (Detail, error) {
	if d := deal.Decide(deal.StageDispatched, deal.ActionViewDispatch, actor.Role); !d.Allowed {
		return Detail{}, d.Err()
	}

	rec, err := s.repo.GetForDeal(ctx, s.pool, actor.CompanyID, dealID)
	if err != nil {
		return Detail{}, err
	}

	items, err := s.dealRepo.ListLineItems(ctx, s.pool, rec.VersionID)
	if err != nil {
		return Detail{}, err
	}

	return Detail{Record: rec, Items: items}, nil
}
