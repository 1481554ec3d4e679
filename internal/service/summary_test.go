package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/service"

	"go.uber.org/zap"
)

type mockAgent struct {
	resp *domain.SummaryResponse
	err  error
	req  *domain.SummaryRequest
}

func (m *mockAgent) Summarize(_ context.Context, req *domain.SummaryRequest) (*domain.SummaryResponse, error) {
	m.req = req
	return m.resp, m.err
}

func sampleAggregate() *domain.AggregatedEstimation {
	agg := domain.NewAggregatedEstimation(domain.RegimeTPS)
	agg.Add(domain.TaxTPS, &domain.Estimation{
		Total:    554_000,
		Currency: domain.Currency,
		Variables: []domain.InputVariable{
			{Label: "Chiffre d'affaires", Value: 10_000_000, Currency: domain.Currency},
		},
		Details: []domain.LineItem{
			{Title: "TPS", Amount: 500_000, Currency: domain.Currency, Rate: "5%"},
			{Title: "Redevance SRTB", Amount: 4_000, Currency: domain.Currency},
		},
		Obligations: []domain.Obligation{{
			Title:     "Solde TPS",
			Deadlines: domain.Deadlines{{Limit: "30 avril"}},
		}},
		Notes:  []domain.Note{{Title: "CCI", Descriptions: []string{strings.Repeat("x", 300)}}},
		Config: domain.TaxConfig{Title: "Taxe Professionnelle Synthétique", CompetentCenter: "CIPE"},
	})
	return agg
}

func TestLocalSummary(t *testing.T) {
	s := service.LocalSummary(sampleAggregate(), domain.MaxSummaryLength)

	for _, want := range []string{
		"ESTIMATION TOTALE:",
		"Entreprise - Régime TPS",
		"DONNÉES SAISIES:",
		"IMPÔTS CALCULÉS:",
		"• TPS:",
		"(5%)",
		"ÉCHÉANCES PRINCIPALES:\n• Solde TPS: 30 avril",
		"INFOS IMPORTANTES:",
		"Taxe Professionnelle Synthétique - CIPE",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in summary:\n%s", want, s)
		}
	}
	if strings.Contains(s, strings.Repeat("x", 101)) {
		t.Error("notes should be clipped")
	}
}

func TestLocalSummary_Truncates(t *testing.T) {
	s := service.LocalSummary(sampleAggregate(), 120)
	if n := utf8.RuneCountInString(s); n > 120 {
		t.Errorf("expected at most 120 characters, got %d", n)
	}
	if !strings.HasSuffix(s, "...") {
		t.Errorf("truncated summary should end with an ellipsis: %q", s)
	}
}

func TestSummarizer_NoAgent(t *testing.T) {
	s := service.NewSummarizer(nil, observability.NewMetrics(), zap.NewNop())

	resp := s.Summarize(context.Background(), sampleAggregate())
	if resp.Source != service.SourceLocal {
		t.Errorf("expected local source, got %s", resp.Source)
	}
}

func TestSummarizer_Agent(t *testing.T) {
	agent := &mockAgent{resp: &domain.SummaryResponse{Summary: "Résumé rédigé", Source: service.SourceAgent}}
	s := service.NewSummarizer(agent, observability.NewMetrics(), zap.NewNop())

	resp := s.Summarize(context.Background(), sampleAggregate())
	if resp.Summary != "Résumé rédigé" || resp.Source != service.SourceAgent {
		t.Errorf("unexpected response %+v", resp)
	}
	if agent.req == nil || agent.req.Draft == "" || agent.req.MaxLength != domain.MaxSummaryLength {
		t.Errorf("agent should receive the local draft, got %+v", agent.req)
	}
}

func TestSummarizer_AgentFailure(t *testing.T) {
	tests := []struct {
		name  string
		agent *mockAgent
	}{
		{"error", &mockAgent{err: errors.New("timeout")}},
		{"blank", &mockAgent{resp: &domain.SummaryResponse{Summary: "  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewMetrics()
			s := service.NewSummarizer(tt.agent, metrics, zap.NewNop())

			resp := s.Summarize(context.Background(), sampleAggregate())
			if resp.Source != service.SourceLocal {
				t.Errorf("expected the local fallback, got %s", resp.Source)
			}
			if got := metrics.GetEstimationSnapshot().ExternalErrors; got != 1 {
				t.Errorf("expected 1 external error, got %d", got)
			}
		})
	}
}
