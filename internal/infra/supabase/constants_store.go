package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ConstantsTable is the PostgREST table holding one row per tax and year.
const ConstantsTable = "impot_constantes"

// constantsRow maps the table columns.
type constantsRow struct {
	Code      string            `json:"code"`
	Name      string            `json:"nom"`
	Kind      string            `json:"type"`
	Year      int               `json:"annee_fiscale"`
	Constants []domain.Constant `json:"constantes"`
	Active    bool              `json:"actif"`
}

func (r constantsRow) record() domain.TaxRecord {
	consts := r.Constants
	if consts == nil {
		consts = []domain.Constant{}
	}
	return domain.TaxRecord{
		Code:      domain.TaxCode(r.Code),
		Name:      r.Name,
		Kind:      domain.TaxKind(r.Kind),
		Year:      r.Year,
		Constants: consts,
		Active:    r.Active,
	}
}

// ConstantsStore implements port.ConstantsStore on Supabase.
type ConstantsStore struct {
	c *Client
}

// NewConstantsStore wraps c.
func NewConstantsStore(c *Client) *ConstantsStore {
	return &ConstantsStore{c: c}
}

// IsNotFound reports whether err is a store miss; the circuit breaker
// counts those as successes.
func IsNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

func (s *ConstantsStore) fetch(ctx context.Context, query string) ([]constantsRow, error) {
	body, err := s.c.call(ctx, http.MethodGet, ConstantsTable+"?"+query, nil, "")
	if err != nil || len(body) == 0 {
		return nil, err
	}
	var rows []constantsRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode constants: %w", err)
	}
	return rows, nil
}

func (s *ConstantsStore) GetTaxRecord(ctx context.Context, code domain.TaxCode, year int) (*domain.TaxRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTaxRecord")
	defer span.End()
	span.SetAttributes(attribute.String("tax.code", string(code)), attribute.Int("tax.year", year))

	q := url.Values{}
	q.Set("code", "eq."+string(code))
	q.Set("annee_fiscale", fmt.Sprintf("eq.%d", year))
	q.Set("actif", "eq.true")
	q.Set("limit", "1")

	rows, err := s.fetch(ctx, q.Encode())
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "constants", ID: domain.ConstantsKey(code, year)}
	}
	r := rows[0].record()
	return &r, nil
}

func (s *ConstantsStore) ListTaxRecords(ctx context.Context, year int) ([]domain.TaxRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTaxRecords")
	defer span.End()

	q := url.Values{}
	q.Set("annee_fiscale", fmt.Sprintf("eq.%d", year))
	q.Set("order", "code.asc")

	rows, err := s.fetch(ctx, q.Encode())
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	out := make([]domain.TaxRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// UpsertConstant reads the record, replaces one constant and writes the
// whole row back. Concurrent admin writes on the same record are last
// writer wins.
func (s *ConstantsStore) UpsertConstant(ctx context.Context, code domain.TaxCode, year int, c domain.Constant) (*domain.TaxRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertConstant")
	defer span.End()
	span.SetAttributes(attribute.String("tax.code", string(code)), attribute.String("constant.code", c.Code))

	rec, err := s.GetTaxRecord(ctx, code, year)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		rec = &domain.TaxRecord{Code: code, Name: string(code), Kind: domain.KindOther, Year: year, Active: true}
	}
	rec.Upsert(c)

	row := constantsRow{
		Code:      string(rec.Code),
		Name:      rec.Name,
		Kind:      string(rec.Kind),
		Year:      rec.Year,
		Constants: rec.Constants,
		Active:    rec.Active,
	}
	body, err := s.c.call(ctx, http.MethodPost, ConstantsTable+"?on_conflict=code,annee_fiscale",
		[]constantsRow{row}, "resolution=merge-duplicates,return=representation")
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	var stored []constantsRow
	if len(body) > 0 {
		if err := json.Unmarshal(body, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode upserted constants: %w", err)
		}
	}
	if len(stored) == 0 {
		return rec, nil
	}
	out := stored[0].record()
	return &out, nil
}

func (s *ConstantsStore) GetConstants(ctx context.Context, code domain.TaxCode, year int) (domain.Constants, error) {
	r, err := s.GetTaxRecord(ctx, code, year)
	if err != nil {
		return nil, err
	}
	return r.Values(), nil
}
