package rates_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/tax/bracket"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/rates"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "porto-novo", rates.Key("Porto-Novo"))
	assert.Equal(t, "porto-novo", rates.Key("porto_novo"))
	assert.Equal(t, "oueme", rates.Key("Ouémé"))
}

func TestCommuneRate_FailsOpen(t *testing.T) {
	r, ok := rates.CommuneRate("Parakou")
	assert.True(t, ok)
	assert.Equal(t, "0.25", r.String())

	r, ok = rates.CommuneRate("atlantis")
	assert.False(t, ok)
	assert.True(t, r.Equal(decimal.NewFromFloat(rates.DefaultCommuneRate)))
}

func TestCommuneRateTable_MergesNormalizedKeys(t *testing.T) {
	table := rates.CommuneRates()
	require.NoError(t, json.Unmarshal([]byte(`{"Porto_Novo":0.2,"Atlantis":0.3}`), &table))

	r, ok := table.Rate("porto-novo")
	assert.True(t, ok)
	assert.Equal(t, "0.2", r.String())
	r, ok = table.Rate("atlantis")
	assert.True(t, ok)
	assert.Equal(t, "0.3", r.String())
	r, _ = table.Rate("parakou")
	assert.Equal(t, "0.25", r.String())

	builtin, _ := rates.CommuneRate("porto-novo")
	assert.Equal(t, "0.17", builtin.String())
}

func TestFixedPart(t *testing.T) {
	assert.Equal(t, int64(70_000), rates.FixedPart("cotonou").IntPart())
	assert.Equal(t, int64(60_000), rates.FixedPart("parakou").IntPart())
	assert.Equal(t, int64(60_000), rates.FixedPart("unknown").IntPart())
}

func TestIBASector(t *testing.T) {
	s, ok := rates.IBASector("stations-services")
	require.True(t, ok)
	assert.Equal(t, rates.FloorFuel, s.Floor)

	s, ok = rates.IBASector("Enseignement privé")
	require.True(t, ok)
	assert.Equal(t, rates.RateReduced, s.Rate)

	s, ok = rates.IBASector("profession-liberale")
	assert.True(t, ok)
	assert.Equal(t, rates.RateGeneral, s.Rate)
	assert.Equal(t, rates.FloorGeneral, s.Floor)

	s, ok = rates.IBASector("astronautique")
	assert.False(t, ok)
	assert.Equal(t, rates.SectorOther, s.Key)
}

func TestISSector_Aliases(t *testing.T) {
	s, ok := rates.ISSector("BTP")
	require.True(t, ok)
	assert.Equal(t, rates.ISSectorConstruction, s.Key)
	assert.Equal(t, rates.FloorConstruction, s.Floor)

	s, ok = rates.ISSector("enseignement")
	require.True(t, ok)
	assert.Equal(t, rates.RateReduced, s.Rate)

	s, ok = rates.ISSector("")
	assert.False(t, ok)
	assert.Equal(t, rates.ISSectorGeneral, s.Key)
}

func TestVehicleTax(t *testing.T) {
	tests := []struct {
		class    string
		power    float64
		capacity float64
		want     int64
		known    bool
	}{
		{rates.VehicleTricycle, 0, 0, 15_000, true},
		{rates.VehicleCompany, 7, 0, 150_000, true},
		{rates.VehicleCompany, 8, 0, 200_000, true},
		{rates.VehiclePrivate, 7, 0, 20_000, true},
		{rates.VehiclePrivate, 10, 0, 30_000, true},
		{rates.VehiclePrivate, 15, 0, 40_000, true},
		{rates.VehiclePrivate, 16, 0, 60_000, true},
		{rates.VehiclePublicPersons, 0, 9, 38_000, true},
		{rates.VehiclePublicPersons, 0, 20, 59_800, true},
		{rates.VehiclePublicPersons, 0, 21, 86_800, true},
		{rates.VehiclePublicGoods, 0, 2.5, 49_500, true},
		{rates.VehiclePublicGoods, 0, 5, 68_200, true},
		{rates.VehiclePublicGoods, 0, 10, 102_300, true},
		{rates.VehiclePublicGoods, 0, 10.5, 136_400, true},
		{"hovercraft", 12, 0, 40_000, false},
	}

	for _, tt := range tests {
		got, known := rates.VehicleTax(tt.class, tt.power, tt.capacity)
		assert.Equal(t, tt.want, got.IntPart(), "%s power=%v capacity=%v", tt.class, tt.power, tt.capacity)
		assert.Equal(t, tt.known, known, tt.class)
	}
}

func TestVehicleTax_MonotonicPerClass(t *testing.T) {
	for _, class := range []string{rates.VehicleCompany, rates.VehiclePrivate} {
		prev := decimal.Zero
		for p := 0.0; p <= 30; p++ {
			got, _ := rates.VehicleTax(class, p, 0)
			assert.True(t, got.GreaterThanOrEqual(prev), "%s at %v", class, p)
			prev = got
		}
	}
	for _, class := range []string{rates.VehiclePublicPersons, rates.VehiclePublicGoods} {
		prev := decimal.Zero
		for c := 0.0; c <= 40; c += 0.5 {
			got, _ := rates.VehicleTax(class, 0, c)
			assert.True(t, got.GreaterThanOrEqual(prev), "%s at %v", class, c)
			prev = got
		}
	}
}

func TestCCIContribution(t *testing.T) {
	assert.Equal(t, int64(20_000), rates.CCIContribution(5e6, rates.FormIndividual).IntPart())
	assert.Equal(t, int64(100_000), rates.CCIContribution(5e6, rates.FormCompany).IntPart())
	assert.Equal(t, int64(150_000), rates.CCIContribution(30e6, rates.FormIndividual).IntPart())
	assert.Equal(t, int64(2_000_000), rates.CCIContribution(9e9, rates.FormCompany).IntPart())
}

func TestPayrollTable(t *testing.T) {
	require.NoError(t, rates.PayrollTable().Validate())

	total, _ := bracket.Apply(decimal.NewFromInt(200_000), rates.PayrollTable())
	assert.Equal(t, int64(16_500), total.IntPart())
}

func TestBroadcastFee_For(t *testing.T) {
	fee := rates.DefaultBroadcastFee()

	assert.True(t, fee.For(time.January).IsZero())
	assert.Equal(t, int64(1_000), fee.For(time.March).IntPart())
	assert.True(t, fee.For(time.May).IsZero())
	assert.Equal(t, int64(3_000), fee.For(time.June).IntPart())
	assert.Equal(t, int64(4_000), fee.For(time.July).IntPart())
	assert.Equal(t, int64(4_000), fee.For(time.December).IntPart())
}

func TestPropertyRate(t *testing.T) {
	tariff, err := rates.PropertyRate("Littoral", "Cotonou", "1er Arrondissement", "Bâtiment en matériaux définitifs à étage")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), tariff.PerSquareM.IntPart())
	assert.Equal(t, int64(50_000), tariff.Minimum.IntPart())

	tariff, err = rates.PropertyRate("oueme", "seme-podji", "ekpe", "categorie_4")
	require.NoError(t, err)
	assert.Equal(t, "Catégorie 4", tariff.Category)
}

func TestPropertyRate_FailsClosedAtEveryLevel(t *testing.T) {
	tests := []struct {
		name                    string
		dep, com, district, cat string
		level                   rates.LookupLevel
	}{
		{"department", "Nowhere", "Cotonou", "1er Arrondissement", "categorie_1", rates.LevelDepartment},
		{"commune", "Littoral", "Nowhere", "1er Arrondissement", "categorie_1", rates.LevelCommune},
		{"district", "Littoral", "Cotonou", "Nowhere", "categorie_1", rates.LevelDistrict},
		{"category", "Littoral", "Cotonou", "1er Arrondissement", "villa", rates.LevelCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rates.PropertyRate(tt.dep, tt.com, tt.district, tt.cat)
			require.Error(t, err)
			assert.True(t, errors.Is(err, rates.ErrRateNotFound))

			var nf *rates.RateNotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tt.level, nf.Level)
		})
	}
}

func TestImportExportScale(t *testing.T) {
	s := rates.ImportExportScale()
	assert.Equal(t, int64(150_000), s.Lookup(decimal.NewFromInt(1)).IntPart())
	assert.Equal(t, int64(1_145_000), s.Lookup(decimal.NewFromFloat(12e9)).IntPart())
}
