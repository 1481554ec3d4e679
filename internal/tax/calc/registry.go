package calc

import "github.com/boddenberg/impots-bj-estimator/internal/domain"

// typed adapts a calculator written against its concrete input type.
func typed[T any, PT interface {
	*T
	Input
}](fn func(PT, Env) (*domain.Estimation, error)) (func() Input, func(Input, Env) (*domain.Estimation, error)) {
	newInput := func() Input { return PT(new(T)) }
	estimate := func(in Input, env Env) (*domain.Estimation, error) {
		return fn(in.(PT), env)
	}
	return newInput, estimate
}

// Registry returns every calculator keyed by tax code. VPS has none.
func Registry() map[domain.TaxCode]Calculator {
	all := []Calculator{
		aibCalculator(),
		ibaCalculator(),
		ircmCalculator(),
		irfCalculator(),
		isCalculator(),
		itsCalculator(),
		patenteCalculator(),
		tfuCalculator(),
		tpsCalculator(),
		tvaCalculator(),
		tvmCalculator(),
	}
	out := make(map[domain.TaxCode]Calculator, len(all))
	for _, c := range all {
		out[c.Code] = c
	}
	return out
}
