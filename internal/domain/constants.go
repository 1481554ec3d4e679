package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TaxKind groups taxes for the constants catalogue.
type TaxKind string

const (
	KindReel  TaxKind = "reel"
	KindTPS   TaxKind = "tps"
	KindOther TaxKind = "autre"
)

// Constant is one configurable fiscal value. Value may be a number,
// an array (scales) or an object (keyed tables).
type Constant struct {
	Code        string          `json:"code"`
	Value       json.RawMessage `json:"valeur"`
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Unit        string          `json:"unite,omitempty"`
}

// TaxRecord is the stored set of constants for one tax and fiscal year.
type TaxRecord struct {
	Code      TaxCode    `json:"code"`
	Name      string     `json:"nom"`
	Kind      TaxKind    `json:"type"`
	Year      int        `json:"anneeFiscale"`
	Constants []Constant `json:"constantes"`
	Active    bool       `json:"actif"`
}

// Constant returns the constant with the given code.
func (r *TaxRecord) Constant(code string) (Constant, bool) {
	for _, c := range r.Constants {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return Constant{}, false
}

// Upsert replaces or appends c.
func (r *TaxRecord) Upsert(c Constant) {
	for i := range r.Constants {
		if strings.EqualFold(r.Constants[i].Code, c.Code) {
			r.Constants[i] = c
			return
		}
	}
	r.Constants = append(r.Constants, c)
}

// Constants is the flattened view a calculator consumes: constant code to
// raw JSON value.
type Constants map[string]json.RawMessage

// Values flattens the record into a Constants map.
func (r *TaxRecord) Values() Constants {
	out := make(Constants, len(r.Constants))
	for _, c := range r.Constants {
		out[c.Code] = c.Value
	}
	return out
}

// Overlay decodes every known key of c onto dst, a pointer to a struct
// whose json tags name constant codes. Keys absent from c keep the value
// already in dst.
func (c Constants) Overlay(dst any) error {
	if len(c) == 0 {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode constants: %w", err)
	}
	return nil
}

// ConstantsKey is the cache key for a tax code and fiscal year.
func ConstantsKey(code TaxCode, year int) string {
	return fmt.Sprintf("%s_%d", code, year)
}
