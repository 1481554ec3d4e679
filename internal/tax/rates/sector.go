package rates

// RateClass selects the nominal profit-tax rate of a sector.
type RateClass int

const (
	RateGeneral RateClass = iota
	// RateReduced covers education and industry.
	RateReduced
)

// FloorClass selects the minimum-tax rule of a sector.
type FloorClass int

const (
	FloorGeneral FloorClass = iota
	FloorConstruction
	FloorRealEstate
	// FloorFuel taxes litres sold instead of revenue.
	FloorFuel
)

// ProfitSector classifies an activity sector for the profit taxes. The
// amounts behind each class are fiscal constants owned by the calculators.
type ProfitSector struct {
	Key   string
	Rate  RateClass
	Floor FloorClass
}

// Individual business profit tax (IBA) sectors.
const (
	SectorPrivateEducation = "enseignement-prive"
	SectorIndustry         = "industrie"
	SectorConstruction     = "batiment-travaux-publics"
	SectorRealEstate       = "immobilier"
	SectorFuelStation      = "stations-services"
	SectorCraft            = "artisanat"
	SectorOther            = "autre"
)

var ibaSectors = map[string]ProfitSector{
	SectorPrivateEducation: {Key: SectorPrivateEducation, Rate: RateReduced},
	SectorIndustry:         {Key: SectorIndustry, Rate: RateReduced},
	SectorConstruction:     {Key: SectorConstruction, Floor: FloorConstruction},
	SectorRealEstate:       {Key: SectorRealEstate, Floor: FloorRealEstate},
	SectorFuelStation:      {Key: SectorFuelStation, Floor: FloorFuel},
	SectorCraft:            {Key: SectorCraft},
	SectorOther:            {Key: SectorOther},
}

// Sectors of the tax code that fall back to the general rule but are
// still recognized.
var ibaGeneralSectors = []string{
	"agriculture", "peche", "elevage", "chercheur-variete-vegetale",
	"profession-liberale", "charges-offices", "propriete-intellectuelle",
	"location-etablissement-commercial", "intermediaire-immobilier",
	"achat-revente-immobilier", "lotissement-terrain",
}

func init() {
	for _, k := range ibaGeneralSectors {
		s := ibaSectors[SectorOther]
		s.Key = k
		ibaSectors[k] = s
	}
}

// IBASector returns the rule of sector, or the general rule and false.
func IBASector(sector string) (ProfitSector, bool) {
	s, ok := ibaSectors[Key(sector)]
	if !ok {
		return ibaSectors[SectorOther], false
	}
	return s, true
}

// IBASectors lists every recognized IBA sector key.
func IBASectors() []string {
	out := make([]string, 0, len(ibaSectors))
	for k := range ibaSectors {
		out = append(out, k)
	}
	return out
}

// Company profit tax (IS) sectors. Both engines resolve through the same
// table; the aliases accept the vocabulary of each.
const (
	ISSectorEducation    = "education"
	ISSectorIndustry     = "industry"
	ISSectorRealEstate   = "real-estate"
	ISSectorConstruction = "construction"
	ISSectorGasStation   = "gas-station"
	ISSectorGeneral      = "general"
)

var isSectors = map[string]ProfitSector{
	ISSectorEducation:    {Key: ISSectorEducation, Rate: RateReduced},
	ISSectorIndustry:     {Key: ISSectorIndustry, Rate: RateReduced},
	ISSectorRealEstate:   {Key: ISSectorRealEstate, Floor: FloorRealEstate},
	ISSectorConstruction: {Key: ISSectorConstruction, Floor: FloorConstruction},
	ISSectorGasStation:   {Key: ISSectorGasStation, Floor: FloorFuel},
	ISSectorGeneral:      {Key: ISSectorGeneral},
}

var isAliases = map[string]string{
	"enseignement": ISSectorEducation,
	"industriel":   ISSectorIndustry,
	"immobilier":   ISSectorRealEstate,
	"btp":          ISSectorConstruction,
	"station":      ISSectorGasStation,
}

// ISSector returns the rule of sector, or the general rule and false.
func ISSector(sector string) (ProfitSector, bool) {
	k := Key(sector)
	if alias, ok := isAliases[k]; ok {
		k = alias
	}
	s, ok := isSectors[k]
	if !ok {
		return isSectors[ISSectorGeneral], false
	}
	return s, true
}
