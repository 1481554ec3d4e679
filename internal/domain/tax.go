package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TaxCode identifies one Beninese tax handled by the estimator.
type TaxCode string

const (
	TaxAIB     TaxCode = "AIB"
	TaxIBA     TaxCode = "IBA"
	TaxIS      TaxCode = "IS"
	TaxITS     TaxCode = "ITS"
	TaxPatente TaxCode = "PATENTE"
	TaxTFU     TaxCode = "TFU"
	TaxTVM     TaxCode = "TVM"
	TaxIRF     TaxCode = "IRF"
	TaxTPS     TaxCode = "TPS"
	TaxIRCM    TaxCode = "IRCM"
	TaxTVA     TaxCode = "TVA"
	TaxVPS     TaxCode = "VPS"
)

// AllTaxCodes lists every known code in sorted order.
var AllTaxCodes = []TaxCode{
	TaxAIB, TaxIBA, TaxIRCM, TaxIRF, TaxIS, TaxITS,
	TaxPatente, TaxTFU, TaxTPS, TaxTVA, TaxTVM, TaxVPS,
}

// ParseTaxCode normalizes s and reports whether it names a known tax.
func ParseTaxCode(s string) (TaxCode, bool) {
	code := TaxCode(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range AllTaxCodes {
		if c == code {
			return code, true
		}
	}
	return code, false
}

// SortTaxCodes sorts codes in place and returns them.
func SortTaxCodes(codes []TaxCode) []TaxCode {
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Regime is the taxation track a business falls under.
type Regime string

const (
	RegimeReel Regime = "REEL"
	RegimeTPS  Regime = "TPS"
)

// Availability marks whether a tax may be computed in this deployment.
type Availability string

const (
	Available    Availability = "available"
	NotAvailable Availability = "not_available"
)

// FirstUnpublishedYear is the first fiscal year whose official constants
// have not been published. Computations for it or later are refused.
const FirstUnpublishedYear = 2026

var yearPattern = regexp.MustCompile(`\d{4}`)

// ExtractYear returns the first four-digit run found in period, or the
// year of now when there is none.
func ExtractYear(period string, now time.Time) int {
	if m := yearPattern.FindString(period); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	return now.Year()
}

// YearPublished reports whether constants exist for year.
func YearPublished(year int) bool {
	return year < FirstUnpublishedYear
}
