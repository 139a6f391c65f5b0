package model

// Measurement is a tagged value distinguishing a measured external datum from
// a neutral default substituted when the provider had nothing. Confidence and
// coverage calculations count only measured values; scoring uses Value either
// way.
type Measurement struct {
	Value    float64 `json:"value"`
	Measured bool    `json:"measured"`
}

// Measured wraps a value observed from an external provider.
func Measured(v float64) Measurement {
	return Measurement{Value: v, Measured: true}
}

// Defaulted wraps a neutral fallback value.
func Defaulted(v float64) Measurement {
	return Measurement{Value: v, Measured: false}
}

// SiteFeatures is an immutable snapshot of one location's external data at
// evaluation time. Created once per scoring call, never mutated.
type SiteFeatures struct {
	Address    string  `json:"address,omitempty"`
	AreaName   string  `json:"area_name,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	PostalCode string  `json:"postal_code,omitempty"`

	Population1km     Measurement `json:"population_1km"`
	PopulationDensity Measurement `json:"population_density"`
	MedianIncome      Measurement `json:"median_income"`

	NearestMetroM Measurement `json:"nearest_metro_distance_m"`
	NearestTramM  Measurement `json:"nearest_tram_distance_m"`

	CompetitorsCount Measurement `json:"competitors_count"`
	CompetitorsPer1k Measurement `json:"competitors_per_1k_residents"`

	WalkabilityPOIs Measurement `json:"walkability_poi_count"`
}

// ScoreResult is the output of one scoring call. Ephemeral unless the caller
// persists it as a Prediction.
type ScoreResult struct {
	Score       float64            `json:"score"`
	RevenueLow  int                `json:"revenue_low"`
	RevenueMid  int                `json:"revenue_mid"`
	RevenueHigh int                `json:"revenue_high"`
	Confidence  float64            `json:"confidence"`
	Components  map[string]float64 `json:"score_components"`
	ConceptID   string             `json:"concept_id,omitempty"`
}
