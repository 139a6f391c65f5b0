package statfin

// fallbackTable holds approximate PAAVO 2023 demographics for common Helsinki
// metro postal codes, used when the PxWeb API is unreachable. One canonical
// entry per postal code.
var fallbackTable = map[string]Demographics{
	"00100": {
		PostalCode:         "00100",
		AreaName:           "Kamppi",
		Population:         28000,
		PopulationDensity:  12500,
		MedianIncome:       54000,
		MeanIncome:         64000,
		HigherEducationPct: 55.7,
	},
	"00120": {
		PostalCode:         "00120",
		AreaName:           "Punavuori",
		Population:         6200,
		PopulationDensity:  8100,
		MedianIncome:       51000,
		MeanIncome:         62000,
		HigherEducationPct: 58.3,
	},
	"00150": {
		PostalCode:         "00150",
		AreaName:           "Eira",
		Population:         9800,
		PopulationDensity:  9400,
		MedianIncome:       56000,
		MeanIncome:         69000,
		HigherEducationPct: 60.2,
	},
	"00170": {
		PostalCode:         "00170",
		AreaName:           "Kruununhaka",
		Population:         8700,
		PopulationDensity:  10200,
		MedianIncome:       52000,
		MeanIncome:         61000,
		HigherEducationPct: 59.8,
	},
	"00250": {
		PostalCode:         "00250",
		AreaName:           "Taka-Töölö",
		Population:         12400,
		PopulationDensity:  9800,
		MedianIncome:       49000,
		MeanIncome:         57000,
		HigherEducationPct: 54.6,
	},
	"00520": {
		PostalCode:         "00520",
		AreaName:           "Pasila",
		Population:         8500,
		PopulationDensity:  3200,
		MedianIncome:       45000,
		MeanIncome:         52000,
		HigherEducationPct: 51.2,
	},
	"00530": {
		PostalCode:         "00530",
		AreaName:           "Kallio",
		Population:         24500,
		PopulationDensity:  11200,
		MedianIncome:       42000,
		MeanIncome:         48000,
		HigherEducationPct: 48.3,
	},
	"02100": {
		PostalCode:         "02100",
		AreaName:           "Tapiola",
		Population:         18200,
		PopulationDensity:  5600,
		MedianIncome:       58000,
		MeanIncome:         72000,
		HigherEducationPct: 62.1,
	},
}

// fallbackDemographics returns the static entry for a postal code, or nil.
func fallbackDemographics(postalCode string) *Demographics {
	if d, ok := fallbackTable[postalCode]; ok {
		return &d
	}
	return nil
}
