// Package postgres is the direct-database constants backend
// (CONSTANTS_BACKEND=postgres). It shares the impot_constantes schema
// with the Supabase backend and owns its migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/resilience"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

const (
	selectRecord = `SELECT code, nom, type, annee_fiscale, constantes, actif
FROM impot_constantes WHERE code = $1 AND annee_fiscale = $2`

	selectYear = `SELECT code, nom, type, annee_fiscale, constantes, actif
FROM impot_constantes WHERE annee_fiscale = $1 ORDER BY code`

	upsertRecord = `INSERT INTO impot_constantes (code, nom, type, annee_fiscale, constantes, actif, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (code, annee_fiscale) DO UPDATE
SET nom = EXCLUDED.nom, type = EXCLUDED.type, constantes = EXCLUDED.constantes,
    actif = EXCLUDED.actif, updated_at = now()`
)

// NewPool opens a pgx pool sized for the estimator.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// ConstantsStore implements port.ConstantsStore on PostgreSQL.
type ConstantsStore struct {
	pool   *pgxpool.Pool
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewConstantsStore wires a store on pool.
func NewConstantsStore(pool *pgxpool.Pool, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *ConstantsStore {
	return &ConstantsStore{pool: pool, cb: cb, cfg: cfg, logger: logger}
}

// Ping checks connectivity for readiness probes.
func (s *ConstantsStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *ConstantsStore) guarded(ctx context.Context, fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, fn)
	})
	return err
}

func (s *ConstantsStore) GetTaxRecord(ctx context.Context, code domain.TaxCode, year int) (*domain.TaxRecord, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetTaxRecord")
	defer span.End()
	span.SetAttributes(attribute.String("tax.code", string(code)), attribute.Int("tax.year", year))

	var rec *domain.TaxRecord
	err := s.guarded(ctx, func() error {
		r, err := scanRecord(s.pool.QueryRow(ctx, selectRecord, string(code), year))
		if errors.Is(err, pgx.ErrNoRows) {
			rec = nil
			return nil
		}
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		s.logger.Warn("postgres: constants lookup failed", zap.String("key", domain.ConstantsKey(code, year)), zap.Error(err))
		return nil, &domain.ErrExternalService{Service: "postgres", Err: err}
	}
	if rec == nil || !rec.Active {
		return nil, &domain.ErrNotFound{Resource: "constants", ID: domain.ConstantsKey(code, year)}
	}
	return rec, nil
}

func (s *ConstantsStore) ListTaxRecords(ctx context.Context, year int) ([]domain.TaxRecord, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListTaxRecords")
	defer span.End()

	var out []domain.TaxRecord
	err := s.guarded(ctx, func() error {
		rows, err := s.pool.Query(ctx, selectYear, year)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "postgres", Err: err}
	}
	if out == nil {
		out = []domain.TaxRecord{}
	}
	return out, nil
}

// UpsertConstant locks the row, replaces one constant and writes it back
// in a single transaction.
func (s *ConstantsStore) UpsertConstant(ctx context.Context, code domain.TaxCode, year int, c domain.Constant) (*domain.TaxRecord, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertConstant")
	defer span.End()
	span.SetAttributes(attribute.String("tax.code", string(code)), attribute.String("constant.code", c.Code))

	var rec *domain.TaxRecord
	err := s.guarded(ctx, func() error {
		return withTransaction(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
			r, err := scanRecord(tx.QueryRow(ctx, selectRecord+" FOR UPDATE", string(code), year))
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				r = newRecord(code, year)
			case err != nil:
				return err
			}
			r.Upsert(c)

			consts, err := json.Marshal(r.Constants)
			if err != nil {
				return resilience.Permanent(err)
			}
			if _, err := tx.Exec(ctx, upsertRecord, string(r.Code), r.Name, string(r.Kind), r.Year, consts, r.Active); err != nil {
				return err
			}
			rec = r
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "postgres", Err: err}
	}
	return rec, nil
}

func (s *ConstantsStore) GetConstants(ctx context.Context, code domain.TaxCode, year int) (domain.Constants, error) {
	r, err := s.GetTaxRecord(ctx, code, year)
	if err != nil {
		return nil, err
	}
	return r.Values(), nil
}

func newRecord(code domain.TaxCode, year int) *domain.TaxRecord {
	return &domain.TaxRecord{
		Code:      code,
		Name:      string(code),
		Kind:      domain.KindOther,
		Year:      year,
		Constants: []domain.Constant{},
		Active:    true,
	}
}

func scanRecord(row pgx.Row) (*domain.TaxRecord, error) {
	var (
		code, name, kind string
		year             int
		raw              []byte
		active           bool
	)
	if err := row.Scan(&code, &name, &kind, &year, &raw, &active); err != nil {
		return nil, err
	}
	return decodeRecord(code, name, kind, year, raw, active)
}

func decodeRecord(code, name, kind string, year int, raw []byte, active bool) (*domain.TaxRecord, error) {
	consts := []domain.Constant{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &consts); err != nil {
			return nil, resilience.Permanent(fmt.Errorf("decode constantes for %s_%d: %w", code, year, err))
		}
	}
	return &domain.TaxRecord{
		Code:      domain.TaxCode(code),
		Name:      name,
		Kind:      domain.TaxKind(kind),
		Year:      year,
		Constants: consts,
		Active:    active,
	}, nil
}

// withTransaction runs fn in a transaction, committing on success and
// rolling back otherwise.
func withTransaction(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error("postgres: rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
