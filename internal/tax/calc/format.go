package calc

import (
	"math"
	"strconv"
	"strings"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"

	"github.com/shopspring/decimal"
)

// FormatAmount renders v as a rounded FCFA amount with space-grouped
// thousands, e.g. "1 250 000 FCFA".
func FormatAmount(v float64) string {
	return groupThousands(int64(math.Round(v))) + " " + domain.Currency
}

func formatDec(d decimal.Decimal) string {
	return FormatAmount(d.InexactFloat64())
}

func groupThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// formatRate renders a fraction as a percentage: 0.015 -> "1.5%".
func formatRate(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String() + "%"
}

func money(d decimal.Decimal) float64 {
	return bracket.Round(d).InexactFloat64()
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func maxDec(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	return decimal.Max(first, rest...)
}

func variable(label, description string, value any) domain.InputVariable {
	return domain.InputVariable{Label: label, Description: description, Value: value, Currency: domain.Currency}
}

func flag(label, description string, value any) domain.InputVariable {
	return domain.InputVariable{Label: label, Description: description, Value: value}
}

func lineItem(title, description string, amount decimal.Decimal, rate, derivation string) domain.LineItem {
	return domain.LineItem{
		Title:       title,
		Description: description,
		Amount:      money(amount),
		Currency:    domain.Currency,
		Rate:        rate,
		Derivation:  derivation,
	}
}

func obligation(title, description string, deadlines ...domain.Deadline) domain.Obligation {
	return domain.Obligation{Title: title, Description: description, Deadlines: deadlines}
}

func deadline(limit, description string) domain.Deadline {
	return domain.Deadline{Limit: limit, Description: description}
}

func note(title string, lines ...string) domain.Note {
	return domain.Note{Title: title, Descriptions: lines}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

var quarterLabels = []struct{ ordinal, limit string }{
	{"Premier", "10 mars"},
	{"Deuxième", "10 juin"},
	{"Troisième", "10 septembre"},
	{"Quatrième", "10 décembre"},
}

// quarterlyInstallments is the four 25% installments plus the annual
// balance shared by the profit taxes.
func quarterlyInstallments(label string) []domain.Obligation {
	out := make([]domain.Obligation, 0, len(quarterLabels)+1)
	for _, q := range quarterLabels {
		out = append(out, obligation(
			label+" - "+q.ordinal+" acompte",
			q.ordinal+" acompte à verser au plus tard le "+q.limit+".",
			deadline(q.limit, "25% du montant de l'"+label+" de l'année précédente."),
		))
	}
	return append(out, obligation(
		label+" - Solde et déclaration annuelle",
		"Le solde doit être versé et la déclaration annuelle déposée avant le 30 avril.",
		deadline("30 avril", "Solde de l'"+label+" et déclaration annuelle avec bilan OHADA."),
	))
}

func quarterlySchedule(label string) []domain.PaymentDate {
	out := make([]domain.PaymentDate, 0, len(quarterLabels)+1)
	for _, q := range quarterLabels {
		out = append(out, domain.PaymentDate{
			Date:        q.limit,
			Description: q.ordinal + " acompte (25% de l'" + label + " de l'année précédente)",
		})
	}
	return append(out, domain.PaymentDate{Date: "30 avril", Description: "Solde et déclaration annuelle"})
}

// installmentNote reports the per-quarter amount owed on the prior-year
// tax, or the first-year waiver.
func installmentNote(label string, prior *float64, parts int64, waived bool) *domain.Note {
	if waived {
		n := note("Acomptes", "Première année d'activité : aucun acompte n'est exigible sur l'"+label+".")
		return &n
	}
	if prior == nil || *prior <= 0 {
		return nil
	}
	each := dec(*prior).Div(decimal.NewFromInt(parts))
	n := note("Acomptes",
		"Chaque acompte s'élève à "+formatDec(each)+" ("+strconv.FormatInt(100/parts, 10)+"% de "+FormatAmount(*prior)+").")
	return &n
}

const (
	centerSmallBusinesses = "Centre des Impôts des Petites Entreprises (CIPE) de votre ressort territorial."
	centerTerritorial     = "Centre des Impôts territorialement compétent selon l'adresse du contribuable."
	taxpayerBusiness      = "Entreprise/Entrepreneur"
)
