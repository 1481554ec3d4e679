package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/port"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/calc"

	"go.uber.org/zap"
)

// Summary sources.
const (
	SourceLocal = "local"
	SourceAgent = "agent"
)

// Summarizer turns an aggregated estimation into a short prose summary,
// optionally rewritten by a remote agent.
type Summarizer struct {
	agent   port.SummaryAgent
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewSummarizer creates a summarizer. agent may be nil.
func NewSummarizer(agent port.SummaryAgent, metrics *observability.Metrics, logger *zap.Logger) *Summarizer {
	return &Summarizer{agent: agent, metrics: metrics, logger: logger}
}

// Summarize returns the agent's summary when one is configured and
// answers, and the local summary otherwise.
func (s *Summarizer) Summarize(ctx context.Context, est *domain.AggregatedEstimation) *domain.SummaryResponse {
	ctx, span := tracer.Start(ctx, "Summarizer.Summarize")
	defer span.End()

	draft := LocalSummary(est, domain.MaxSummaryLength)
	if s.agent == nil {
		return &domain.SummaryResponse{Summary: draft, Source: SourceLocal}
	}

	start := time.Now()
	resp, err := s.agent.Summarize(ctx, &domain.SummaryRequest{
		Estimation: est,
		Draft:      draft,
		MaxLength:  domain.MaxSummaryLength,
	})
	s.metrics.RecordRequestDuration("summarizer", time.Since(start))
	if err != nil || resp == nil || strings.TrimSpace(resp.Summary) == "" {
		s.metrics.IncrExternalError("summarizer")
		s.logger.Warn("summarizer unavailable, using local summary", zap.Error(err))
		return &domain.SummaryResponse{Summary: draft, Source: SourceLocal}
	}

	out := *resp
	out.Summary = truncateLines(out.Summary, domain.MaxSummaryLength)
	return &out
}

// LocalSummary renders est in at most limit characters.
func LocalSummary(est *domain.AggregatedEstimation, limit int) string {
	codes := est.Codes()
	sections := []string{
		fmt.Sprintf("ESTIMATION TOTALE: %s %s", calc.FormatAmount(est.Total), est.Currency),
	}
	if est.Regime != "" {
		sections = append(sections, "Régime: "+regimeLabel(est.Regime))
	}

	var vars, items, deadlines, notes []string
	for _, code := range codes {
		for _, v := range est.Variables[code] {
			line := fmt.Sprintf("• %s: %v %s", v.Label, v.Value, v.Currency)
			if utf8.RuneCountInString(line) < 80 {
				vars = append(vars, strings.TrimSpace(line))
			}
		}
		for _, d := range est.Details[code] {
			line := fmt.Sprintf("• %s: %s %s", d.Title, calc.FormatAmount(d.Amount), d.Currency)
			if d.Rate != "" {
				line += " (" + d.Rate + ")"
			}
			items = append(items, line)
		}
		for _, o := range est.Obligations[code] {
			for _, dl := range o.Deadlines {
				deadlines = append(deadlines, fmt.Sprintf("• %s: %s", o.Title, dl.Limit))
			}
		}
		for _, n := range est.Notes[code] {
			notes = append(notes, fmt.Sprintf("• %s: %s", n.Title, clip(strings.Join(n.Descriptions, ", "), 100)))
		}
	}

	sections = appendSection(sections, "DONNÉES SAISIES", vars, 3)
	sections = appendSection(sections, "IMPÔTS CALCULÉS", items, 3)
	sections = appendSection(sections, "ÉCHÉANCES PRINCIPALES", deadlines, 2)
	sections = appendSection(sections, "INFOS IMPORTANTES", notes, 2)

	if len(codes) > 0 {
		cfg := est.Config[codes[0]]
		if cfg.Title != "" {
			sections = append(sections, fmt.Sprintf("%s - %s", cfg.Title, cfg.CompetentCenter))
		}
	}

	return truncateLines(strings.Join(sections, "\n\n"), limit)
}

func regimeLabel(r domain.Regime) string {
	if r == domain.RegimeTPS {
		return "Entreprise - Régime TPS"
	}
	return "Entreprise - Régime Réel"
}

func appendSection(sections []string, title string, lines []string, keep int) []string {
	if len(lines) == 0 {
		return sections
	}
	if len(lines) > keep {
		lines = lines[:keep]
	}
	return append(sections, title+":\n"+strings.Join(lines, "\n"))
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// truncateLines cuts s to limit characters, at the last full line when
// that keeps most of the text.
func truncateLines(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := string(r[:limit-3])
	if i := strings.LastIndex(cut, "\n"); i >= 0 && utf8.RuneCountInString(cut[:i]) > limit*8/10 {
		return cut[:i] + "\n..."
	}
	return cut + "..."
}
