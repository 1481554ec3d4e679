// Package memory is the in-process constants store: the default backend
// and the one admin writes land in when no database is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
)

type recordKey struct {
	code domain.TaxCode
	year int
}

// ConstantsStore implements port.ConstantsStore on a guarded map.
type ConstantsStore struct {
	mu      sync.RWMutex
	records map[recordKey]*domain.TaxRecord
}

// NewConstantsStore returns a store holding seed.
func NewConstantsStore(seed ...domain.TaxRecord) *ConstantsStore {
	s := &ConstantsStore{records: make(map[recordKey]*domain.TaxRecord)}
	for i := range seed {
		r := clone(&seed[i])
		s.records[recordKey{r.Code, r.Year}] = r
	}
	return s
}

// LoadSeed decodes a JSON array of tax records, as written by the admin
// export, into a store.
func LoadSeed(b []byte) (*ConstantsStore, error) {
	var records []domain.TaxRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode constants seed: %w", err)
	}
	return NewConstantsStore(records...), nil
}

func (s *ConstantsStore) GetTaxRecord(_ context.Context, code domain.TaxCode, year int) (*domain.TaxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[recordKey{code, year}]
	if !ok || !r.Active {
		return nil, &domain.ErrNotFound{Resource: "constants", ID: domain.ConstantsKey(code, year)}
	}
	return clone(r), nil
}

func (s *ConstantsStore) ListTaxRecords(_ context.Context, year int) ([]domain.TaxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TaxRecord, 0)
	for k, r := range s.records {
		if k.year == year {
			out = append(out, *clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *ConstantsStore) UpsertConstant(_ context.Context, code domain.TaxCode, year int, c domain.Constant) (*domain.TaxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey{code, year}
	r, ok := s.records[k]
	if !ok {
		r = &domain.TaxRecord{Code: code, Name: string(code), Kind: domain.KindOther, Year: year, Active: true}
		s.records[k] = r
	}
	r.Upsert(c)
	return clone(r), nil
}

// GetConstants makes the store usable directly as a provider.
func (s *ConstantsStore) GetConstants(ctx context.Context, code domain.TaxCode, year int) (domain.Constants, error) {
	r, err := s.GetTaxRecord(ctx, code, year)
	if err != nil {
		return nil, err
	}
	return r.Values(), nil
}

func clone(r *domain.TaxRecord) *domain.TaxRecord {
	c := *r
	c.Constants = append([]domain.Constant(nil), r.Constants...)
	return &c
}
