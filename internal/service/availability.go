package service

import (
	"fmt"
	"strings"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/calc"
)

// DefaultAvailability is the deployment default before TAX_AVAILABILITY
// overrides.
func DefaultAvailability() map[domain.TaxCode]domain.Availability {
	return map[domain.TaxCode]domain.Availability{
		domain.TaxAIB:     domain.Available,
		domain.TaxIBA:     domain.Available,
		domain.TaxPatente: domain.Available,
		domain.TaxIS:      domain.Available,
		domain.TaxTFU:     domain.Available,
		domain.TaxITS:     domain.Available,
		domain.TaxIRF:     domain.Available,
		domain.TaxTPS:     domain.Available,
		domain.TaxTVM:     domain.Available,
		domain.TaxIRCM:    domain.NotAvailable,
		domain.TaxTVA:     domain.NotAvailable,
		domain.TaxVPS:     domain.NotAvailable,
	}
}

var uncomputedTitles = map[domain.TaxCode]string{
	domain.TaxVPS: "le Versement Patronal sur Salaires",
}

// Availability is the registry of computable taxes. Every available code
// is guaranteed to have a calculator.
type Availability struct {
	calculators map[domain.TaxCode]calc.Calculator
	status      map[domain.TaxCode]domain.Availability
}

// NewAvailability applies overrides, a comma separated list such as
// "TVA=available,IRCM=not_available", to the defaults and checks the
// result against calculators.
func NewAvailability(calculators map[domain.TaxCode]calc.Calculator, overrides string) (*Availability, error) {
	status := DefaultAvailability()

	for _, part := range strings.Split(overrides, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("tax availability %q: expected CODE=state", part)
		}
		code, known := domain.ParseTaxCode(name)
		if !known {
			return nil, fmt.Errorf("tax availability %q: unknown tax code", part)
		}
		switch st := domain.Availability(strings.ToLower(strings.TrimSpace(value))); st {
		case domain.Available, domain.NotAvailable:
			status[code] = st
		default:
			return nil, fmt.Errorf("tax availability %q: state must be %s or %s", part, domain.Available, domain.NotAvailable)
		}
	}

	for _, code := range domain.AllTaxCodes {
		if status[code] != domain.Available {
			continue
		}
		if _, ok := calculators[code]; !ok {
			return nil, fmt.Errorf("tax %s is marked available but has no calculator", code)
		}
	}
	return &Availability{calculators: calculators, status: status}, nil
}

// Calculator returns the calculator of code when code is available.
func (a *Availability) Calculator(code domain.TaxCode) (calc.Calculator, bool) {
	if a.status[code] != domain.Available {
		return calc.Calculator{}, false
	}
	c, ok := a.calculators[code]
	return c, ok
}

// IsAvailable reports whether code may be computed.
func (a *Availability) IsAvailable(code domain.TaxCode) bool {
	_, ok := a.Calculator(code)
	return ok
}

// List returns every known tax in code order.
func (a *Availability) List() []domain.TaxAvailability {
	out := make([]domain.TaxAvailability, 0, len(domain.AllTaxCodes))
	for _, code := range domain.AllTaxCodes {
		title := uncomputedTitles[code]
		if c, ok := a.calculators[code]; ok {
			title = c.Title
		}
		st := a.status[code]
		if st == "" {
			st = domain.NotAvailable
		}
		out = append(out, domain.TaxAvailability{Code: code, Title: title, Availability: st})
	}
	return out
}
