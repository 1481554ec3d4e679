// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
)

// ConstantsProvider yields the fiscal constants of one tax for one year.
// A missing entry is reported as *domain.ErrNotFound.
type ConstantsProvider interface {
	GetConstants(ctx context.Context, code domain.TaxCode, year int) (domain.Constants, error)
}

// ConstantsStore is the persistence behind the provider and the admin API.
type ConstantsStore interface {
	GetTaxRecord(ctx context.Context, code domain.TaxCode, year int) (*domain.TaxRecord, error)
	ListTaxRecords(ctx context.Context, year int) ([]domain.TaxRecord, error)
	UpsertConstant(ctx context.Context, code domain.TaxCode, year int, c domain.Constant) (*domain.TaxRecord, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// SharedConstantsCache is the cross-replica cache tier. A miss is
// (nil, false, nil).
type SharedConstantsCache interface {
	Get(ctx context.Context, key string) (domain.Constants, bool, error)
	Set(ctx context.Context, key string, consts domain.Constants) error
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) (int, error)
}

// InvalidationBus fans cache invalidations out to every replica. An empty
// key means "everything".
type InvalidationBus interface {
	Publish(ctx context.Context, key string) error
	Subscribe(ctx context.Context, fn func(key string)) error
}

// SummaryAgent produces a prose summary of an aggregated estimation.
type SummaryAgent interface {
	Summarize(ctx context.Context, req *domain.SummaryRequest) (*domain.SummaryResponse, error)
}

// Clock abstracts wall time so month- and year-dependent rules are testable.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the real clock.
var SystemClock Clock = ClockFunc(time.Now)
