package rates

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// tfuData is a sample tariff table covering a handful of districts.
// Locations outside it fail closed.
//
//go:embed data/tfu_tarifs.json
var tfuData []byte

// ErrRateNotFound is matched by every property-tax lookup miss.
var ErrRateNotFound = errors.New("property tax rate not found")

// LookupLevel names the hierarchy level where a property-tax lookup failed.
type LookupLevel string

const (
	LevelDepartment LookupLevel = "departement"
	LevelCommune    LookupLevel = "commune"
	LevelDistrict   LookupLevel = "arrondissement"
	LevelCategory   LookupLevel = "categorie"
)

// RateNotFoundError reports which level of the hierarchy is missing.
type RateNotFoundError struct {
	Level      LookupLevel
	Department string
	Commune    string
	District   string
	Category   string
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("Tarif TFU non trouvé pour %s - %s - %s (catégorie %s): %s inconnu",
		e.Department, e.Commune, e.District, e.Category, e.Level)
}

func (e *RateNotFoundError) Is(target error) bool { return target == ErrRateNotFound }

// PropertyTariff is the property-tax rate of one building category in one
// district.
type PropertyTariff struct {
	Key         string          `json:"-"`
	Category    string          `json:"nom_categorie"`
	Description string          `json:"description"`
	PerSquareM  decimal.Decimal `json:"tfu_par_m2"`
	Minimum     decimal.Decimal `json:"tfu_minimum"`
}

type tfuDistrict struct {
	Name    string                    `json:"nom"`
	Tariffs map[string]PropertyTariff `json:"tarifs"`
}

type tfuCommune struct {
	Name      string        `json:"nom"`
	Districts []tfuDistrict `json:"arrondissements"`
}

type tfuDepartment struct {
	Name     string       `json:"nom"`
	Communes []tfuCommune `json:"communes"`
}

// department -> commune -> district -> category, all keys slugged.
type tfuIndex map[string]map[string]map[string]map[string]PropertyTariff

var (
	tfuOnce  sync.Once
	tfuTable tfuIndex
	tfuErr   error
)

func loadTFU() (tfuIndex, error) {
	tfuOnce.Do(func() {
		var raw struct {
			Departments []tfuDepartment `json:"departements"`
		}
		if err := json.Unmarshal(tfuData, &raw); err != nil {
			tfuErr = fmt.Errorf("parse property tax table: %w", err)
			return
		}
		idx := make(tfuIndex, len(raw.Departments))
		for _, dep := range raw.Departments {
			communes := make(map[string]map[string]map[string]PropertyTariff, len(dep.Communes))
			for _, com := range dep.Communes {
				districts := make(map[string]map[string]PropertyTariff, len(com.Districts))
				for _, dis := range com.Districts {
					cats := make(map[string]PropertyTariff, len(dis.Tariffs)*2)
					for k, t := range dis.Tariffs {
						t.Key = k
						cats[Key(k)] = t
						cats[Key(t.Description)] = t
					}
					districts[Key(dis.Name)] = cats
				}
				communes[Key(com.Name)] = districts
			}
			idx[Key(dep.Name)] = communes
		}
		tfuTable = idx
	})
	return tfuTable, tfuErr
}

// PropertyRate resolves the tariff of a building category. Any missing
// level yields a *RateNotFoundError; there is no default.
func PropertyRate(department, commune, district, category string) (PropertyTariff, error) {
	idx, err := loadTFU()
	if err != nil {
		return PropertyTariff{}, err
	}
	miss := func(level LookupLevel) error {
		return &RateNotFoundError{
			Level: level, Department: department, Commune: commune,
			District: district, Category: category,
		}
	}

	communes, ok := idx[Key(department)]
	if !ok {
		return PropertyTariff{}, miss(LevelDepartment)
	}
	districts, ok := communes[Key(commune)]
	if !ok {
		return PropertyTariff{}, miss(LevelCommune)
	}
	cats, ok := districts[Key(district)]
	if !ok {
		return PropertyTariff{}, miss(LevelDistrict)
	}
	t, ok := cats[Key(category)]
	if !ok {
		return PropertyTariff{}, miss(LevelCategory)
	}
	return t, nil
}

// PropertyDepartments lists the department keys known to the table.
func PropertyDepartments() ([]string, error) {
	idx, err := loadTFU()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(idx))
	for k := range idx {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
