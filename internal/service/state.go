package service

import (
	"context"
	"time"

	"shopdesk/backend/internal/cart"
	"shopdesk/backend/internal/domain"
	"shopdesk/backend/internal/logging"
	"shopdesk/backend/internal/metrics"
	"shopdesk/backend/internal/taxonomy"
)

// State is one consistent view of the catalog and ledger together with
// everything derived from them. It is replaced wholesale by Refresh and
// must be treated as read-only.
type State struct {
	Products []domain.Product
	Sales    []domain.SaleRecord
	Taxonomy *taxonomy.Registry
	Monthly  []domain.SalesMetric
	LoadedAt time.Time

	catalog     cart.CatalogMap
	refreshedAt time.Time
}

func newState(snapshot *domain.Snapshot) *State {
	catalog := make(cart.CatalogMap, len(snapshot.Products))
	for _, p := range snapshot.Products {
		catalog[p.ID] = p
	}
	return &State{
		Products: snapshot.Products,
		Sales:    snapshot.Sales,
		Taxonomy: taxonomy.Rebuild(snapshot.Products),
		Monthly:  metrics.ComputeMonthlyMetrics(snapshot.Sales),
		LoadedAt: snapshot.LoadedAt,
		catalog:  catalog,
	}
}

// Refresh reloads the catalog and ledger, through the snapshot cache, and
// replaces the current state.
func (s *Service) Refresh(ctx context.Context) error {
	return s.reload(ctx, false)
}

// State returns the current view. It is loaded on first use and reloaded
// once older than the snapshot TTL; a failed reload of a stale view keeps
// serving the old one.
func (s *Service) State(ctx context.Context) (*State, error) {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	if st != nil && s.now().Sub(st.refreshedAt) < s.snapshotTTL {
		return st, nil
	}
	if err := s.Refresh(ctx); err != nil {
		if st != nil {
			logging.LogError(s.logger, "service", "State", "reload stale state", nil, err)
			return st, nil
		}
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

func (s *Service) reload(ctx context.Context, bypassCache bool) error {
	snapshot, err := s.loadSnapshot(ctx, bypassCache)
	if err != nil {
		return err
	}
	st := newState(snapshot)
	st.refreshedAt = s.now()

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

func (s *Service) loadSnapshot(ctx context.Context, bypassCache bool) (*domain.Snapshot, error) {
	if !bypassCache {
		cached, ok, err := s.snapshots.Get(ctx)
		if err != nil {
			logging.LogError(s.logger, "service", "loadSnapshot", "read snapshot cache", nil, err)
		} else if ok {
			return cached, nil
		}
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := &domain.Snapshot{
		Products: products,
		Sales:    sales,
		LoadedAt: s.now().UTC(),
	}

	if err := s.snapshots.Set(ctx, snapshot, s.snapshotTTL); err != nil {
		logging.LogError(s.logger, "service", "loadSnapshot", "write snapshot cache", nil, err)
	}
	return snapshot, nil
}

// afterMutation drops the shared snapshot and reloads from storage. A
// failed reload leaves the previous state in place; the mutation itself
// has already succeeded.
func (s *Service) afterMutation(ctx context.Context, action string) {
	if err := s.snapshots.Invalidate(ctx); err != nil {
		logging.LogError(s.logger, "service", "afterMutation", "invalidate snapshot cache", action, err)
	}
	if err := s.reload(ctx, true); err != nil {
		logging.LogError(s.logger, "service", "afterMutation", "reload state", action, err)
	}
}
