// Package rates holds the static geographic and sectoral lookup tables.
//
// Sector, commune and vehicle lookups fail open: an unknown key resolves
// to a documented default entry and the caller is told via the returned
// bool. The property-tax hierarchy in tfu.go fails closed instead.
package rates

import (
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// Key normalizes a caller-supplied name ("Porto-Novo", "porto_novo",
// "PORTO NOVO") to the slug form used by every table.
func Key(s string) string {
	return slug.Make(strings.ReplaceAll(s, "_", " "))
}
