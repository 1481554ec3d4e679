// Package service provides the business logic layer (use cases): the
// constants provider, the aggregated estimator, taxpayer profiling and
// estimation summaries.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/cache"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var constantsTracer = otel.Tracer("service/constants")

const constantsCacheName = "constants"

// ConstantsService resolves fiscal constants through the local cache, the
// optional shared Redis tier and finally the store. It implements
// port.ConstantsProvider.
type ConstantsService struct {
	store   port.ConstantsStore
	backend string
	local   *cache.InMemory[domain.Constants]
	shared  port.SharedConstantsCache
	bus     port.InvalidationBus
	metrics *observability.Metrics
	logger  *zap.Logger

	mu        sync.RWMutex
	listeners []func(key string)
}

// NewConstantsService wires the provider. shared and bus may be nil.
func NewConstantsService(
	store port.ConstantsStore,
	backend string,
	local *cache.InMemory[domain.Constants],
	shared port.SharedConstantsCache,
	bus port.InvalidationBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ConstantsService {
	return &ConstantsService{
		store:   store,
		backend: backend,
		local:   local,
		shared:  shared,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
	}
}

// GetConstants returns the constants of code for year. A store miss is
// returned as *domain.ErrNotFound and is not cached.
func (s *ConstantsService) GetConstants(ctx context.Context, code domain.TaxCode, year int) (domain.Constants, error) {
	ctx, span := constantsTracer.Start(ctx, "ConstantsService.GetConstants")
	defer span.End()
	span.SetAttributes(attribute.String("tax.code", string(code)), attribute.Int("tax.year", year))

	key := domain.ConstantsKey(code, year)
	if consts, ok := s.local.Get(key); ok {
		s.metrics.IncrCacheHit(constantsCacheName)
		return consts, nil
	}

	if s.shared != nil {
		consts, ok, err := s.shared.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.IncrExternalError("redis")
			s.logger.Warn("shared constants cache unavailable", zap.String("key", key), zap.Error(err))
		case ok:
			s.metrics.IncrCacheHit(constantsCacheName)
			s.local.Set(key, consts)
			return consts, nil
		}
	}
	s.metrics.IncrCacheMiss(constantsCacheName)

	rec, err := s.store.GetTaxRecord(ctx, code, year)
	if err != nil {
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			s.metrics.IncrExternalError(s.backend)
			s.logger.Error("constants store lookup failed",
				zap.String("key", key),
				zap.String("backend", s.backend),
				zap.Error(err),
			)
		}
		return nil, err
	}

	consts := rec.Values()
	s.local.Set(key, consts)
	if s.shared != nil {
		if err := s.shared.Set(ctx, key, consts); err != nil {
			s.metrics.IncrExternalError("redis")
		}
	}
	return consts, nil
}

// GetRecord reads a record straight from the store for the admin API.
func (s *ConstantsService) GetRecord(ctx context.Context, code domain.TaxCode, year int) (*domain.TaxRecord, error) {
	ctx, span := constantsTracer.Start(ctx, "ConstantsService.GetRecord")
	defer span.End()

	return s.store.GetTaxRecord(ctx, code, year)
}

// ListRecords lists every record of year.
func (s *ConstantsService) ListRecords(ctx context.Context, year int) ([]domain.TaxRecord, error) {
	ctx, span := constantsTracer.Start(ctx, "ConstantsService.ListRecords")
	defer span.End()

	return s.store.ListTaxRecords(ctx, year)
}

// PutConstant writes one constant and invalidates the affected key
// everywhere.
func (s *ConstantsService) PutConstant(ctx context.Context, code domain.TaxCode, year int, c domain.Constant) (*domain.TaxRecord, error) {
	ctx, span := constantsTracer.Start(ctx, "ConstantsService.PutConstant")
	defer span.End()
	span.SetAttributes(attribute.String("constant.code", c.Code))

	if c.Code == "" {
		return nil, &domain.ErrValidation{Field: "code", Message: "le code de la constante est requis"}
	}
	if len(c.Value) == 0 {
		return nil, &domain.ErrValidation{Field: "valeur", Message: "la valeur de la constante est requise"}
	}
	if !domain.YearPublished(year) {
		return nil, &domain.ErrValidation{
			Field:   "annee",
			Message: fmt.Sprintf("l'année %d n'est pas encore ouverte au paramétrage", year),
		}
	}

	rec, err := s.store.UpsertConstant(ctx, code, year, c)
	if err != nil {
		return nil, fmt.Errorf("upsert constant: %w", err)
	}
	s.logger.Info("constant updated",
		zap.String("key", domain.ConstantsKey(code, year)),
		zap.String("constant", c.Code),
	)
	s.Invalidate(ctx, code, year)
	return rec, nil
}

// Invalidate drops one key from both cache tiers and tells the other
// replicas.
func (s *ConstantsService) Invalidate(ctx context.Context, code domain.TaxCode, year int) {
	key := domain.ConstantsKey(code, year)
	s.dropLocal(key)
	if s.shared != nil {
		if err := s.shared.Delete(ctx, key); err != nil {
			s.logger.Warn("shared cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.publish(ctx, key)
}

// InvalidateAll empties both cache tiers and tells the other replicas.
func (s *ConstantsService) InvalidateAll(ctx context.Context) int {
	n := s.local.Len()
	s.dropLocal("")
	if s.shared != nil {
		removed, err := s.shared.DeleteAll(ctx)
		if err != nil {
			s.logger.Warn("shared cache flush failed", zap.Error(err))
		}
		n += removed
	}
	s.publish(ctx, "")
	return n
}

// OnInvalidate registers fn to run after every invalidation, local or
// received from another replica. An empty key means everything.
func (s *ConstantsService) OnInvalidate(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Subscribe starts consuming invalidations published by other replicas.
// It is a no-op without a bus.
func (s *ConstantsService) Subscribe(ctx context.Context) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Subscribe(ctx, s.dropLocal)
}

func (s *ConstantsService) publish(ctx context.Context, key string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, key); err != nil {
		s.metrics.IncrExternalError("redis")
		s.logger.Warn("invalidation publish failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *ConstantsService) dropLocal(key string) {
	if key == "" {
		s.local.Clear()
	} else {
		s.local.Delete(key)
	}

	s.mu.RLock()
	listeners := append([]func(string){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(key)
	}
}
