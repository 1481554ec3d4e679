package rates

import "github.com/shopspring/decimal"

// Vehicle classes of the vehicle tax.
const (
	VehicleTricycle      = "tricycle"
	VehicleCompany       = "company"
	VehiclePrivate       = "private"
	VehiclePublicPersons = "public-persons"
	VehiclePublicGoods   = "public-goods"
)

// DefaultVehicleClass is used for unrecognized classes.
const DefaultVehicleClass = VehiclePrivate

var vehicleLabels = map[string]string{
	VehicleTricycle:      "Tricycle",
	VehicleCompany:       "Véhicule de société",
	VehiclePrivate:       "Véhicule particulier",
	VehiclePublicPersons: "Transport public de personnes",
	VehiclePublicGoods:   "Transport public de marchandises",
}

// VehicleLabel returns the display label of class.
func VehicleLabel(class string) string {
	if l, ok := vehicleLabels[Key(class)]; ok {
		return l
	}
	return class
}

// VehicleTax returns the annual tax of one vehicle. power is in fiscal
// horsepower, capacity in seats or tonnes depending on class. Unknown
// classes are taxed as DefaultVehicleClass and reported with false.
func VehicleTax(class string, power, capacity float64) (decimal.Decimal, bool) {
	switch Key(class) {
	case VehicleTricycle:
		return d(15_000), true
	case VehicleCompany:
		if power <= 7 {
			return d(150_000), true
		}
		return d(200_000), true
	case VehiclePrivate:
		return privateVehicleTax(power), true
	case VehiclePublicPersons:
		switch {
		case capacity <= 9:
			return d(38_000), true
		case capacity <= 20:
			return d(59_800), true
		default:
			return d(86_800), true
		}
	case VehiclePublicGoods:
		switch {
		case capacity <= 2.5:
			return d(49_500), true
		case capacity <= 5:
			return d(68_200), true
		case capacity <= 10:
			return d(102_300), true
		default:
			return d(136_400), true
		}
	}
	return privateVehicleTax(power), false
}

func privateVehicleTax(power float64) decimal.Decimal {
	switch {
	case power <= 7:
		return d(20_000)
	case power <= 10:
		return d(30_000)
	case power <= 15:
		return d(40_000)
	default:
		return d(60_000)
	}
}
