package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/service"

	"go.uber.org/zap"
)

func taxCodes(res *domain.ProfileResult) map[domain.TaxCode]bool {
	out := make(map[domain.TaxCode]bool, len(res.Taxes))
	for _, t := range res.Taxes {
		out[t.Code] = true
	}
	return out
}

func TestProfile(t *testing.T) {
	p := service.NewProfiler(fixedClock, zap.NewNop())

	tests := []struct {
		name       string
		req        domain.ProfileRequest
		wantRegime domain.Regime
		want       []domain.TaxCode
		notWant    []domain.TaxCode
		count      int
	}{
		{
			name:       "small business",
			req:        domain.ProfileRequest{FiscalPeriod: "2025", Revenue: 20_000_000, TaxpayerType: domain.TaxpayerIndividual, FinancialStart: "2025-01-01"},
			wantRegime: domain.RegimeTPS,
			want:       []domain.TaxCode{domain.TaxTPS, domain.TaxTVM, domain.TaxTFU},
			notWant:    []domain.TaxCode{domain.TaxIS, domain.TaxIBA},
			count:      3,
		},
		{
			name:       "company",
			req:        domain.ProfileRequest{FiscalPeriod: "2025", Revenue: 120_000_000, TaxpayerType: domain.TaxpayerCompany, FinancialStart: "01/01/2025"},
			wantRegime: domain.RegimeReel,
			want:       []domain.TaxCode{domain.TaxIS, domain.TaxAIB, domain.TaxVPS},
			notWant:    []domain.TaxCode{domain.TaxIBA, domain.TaxTPS},
			count:      10,
		},
		{
			name:       "sole proprietor",
			req:        domain.ProfileRequest{FiscalPeriod: "2025", Revenue: 80_000_000, TaxpayerType: "ei", FinancialStart: "2025-01-01T00:00:00Z"},
			wantRegime: domain.RegimeReel,
			want:       []domain.TaxCode{domain.TaxIBA},
			notWant:    []domain.TaxCode{domain.TaxIS},
			count:      10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			res, err := p.Profile(context.Background(), &req)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if res.Profile.Regime != tt.wantRegime {
				t.Errorf("expected regime %s, got %s", tt.wantRegime, res.Profile.Regime)
			}
			codes := taxCodes(res)
			for _, c := range tt.want {
				if !codes[c] {
					t.Errorf("expected %s in %v", c, codes)
				}
			}
			for _, c := range tt.notWant {
				if codes[c] {
					t.Errorf("did not expect %s", c)
				}
			}
			if len(res.Taxes) != tt.count {
				t.Errorf("expected %d taxes, got %d", tt.count, len(res.Taxes))
			}
		})
	}
}

func TestProfile_UnpublishedYear(t *testing.T) {
	p := service.NewProfiler(fixedClock, zap.NewNop())

	_, err := p.Profile(context.Background(), &domain.ProfileRequest{
		FiscalPeriod: "2026", Revenue: 10_000_000, TaxpayerType: domain.TaxpayerCompany, FinancialStart: "2026-01-01",
	})
	f := failureOf(t, err)
	if f.Code() != domain.CodeProfileUnavailable {
		t.Errorf("expected DONNEES_FISCALES_NON_DISPONIBLES, got %s", f.Code())
	}
	if f.Errors[0].Severity != domain.SeverityInfo {
		t.Errorf("expected info severity, got %s", f.Errors[0].Severity)
	}
	if len(f.Context.MissingData) != 3 {
		t.Errorf("unexpected missing data %v", f.Context.MissingData)
	}
}

func TestProfile_Validation(t *testing.T) {
	p := service.NewProfiler(fixedClock, zap.NewNop())

	tests := []struct {
		name string
		req  domain.ProfileRequest
	}{
		{"negative revenue", domain.ProfileRequest{FiscalPeriod: "2025", Revenue: -1, TaxpayerType: "SI", FinancialStart: "2025-01-01"}},
		{"no type", domain.ProfileRequest{FiscalPeriod: "2025", Revenue: 1, FinancialStart: "2025-01-01"}},
		{"no period", domain.ProfileRequest{Revenue: 1, TaxpayerType: "SI", FinancialStart: "2025-01-01"}},
		{"bad date", domain.ProfileRequest{FiscalPeriod: "2025", Revenue: 1, TaxpayerType: "SI", FinancialStart: "début janvier"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := p.Profile(context.Background(), &req)
			f := failureOf(t, err)
			if f.Code() != domain.CodeValidation {
				t.Errorf("expected VALIDATION_ERROR, got %s", f.Code())
			}
			if f.Context.TaxpayerType != "Non déterminé" {
				t.Errorf("unexpected context %+v", f.Context)
			}
		})
	}
}
