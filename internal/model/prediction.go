package model

import "time"

// Prediction is a persisted scoring result a future outcome can reference.
type Prediction struct {
	ID        string `json:"id"`
	ConceptID string `json:"concept_id,omitempty"` // empty for conceptless scores

	Address    string  `json:"address,omitempty"`
	AreaName   string  `json:"area_name,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	PostalCode string  `json:"postal_code,omitempty"`

	Score       float64 `json:"score"`
	RevenueLow  float64 `json:"revenue_low"`
	RevenueMid  float64 `json:"revenue_mid"`
	RevenueHigh float64 `json:"revenue_high"`
	Confidence  float64 `json:"confidence"`
	Rank        int     `json:"rank,omitempty"`

	Features       *SiteFeatures `json:"features,omitempty"` // snapshot at prediction time
	Recommendation string        `json:"recommendation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TrainingOutcome links one prediction to its actual observed revenue.
// At most one outcome exists per prediction.
type TrainingOutcome struct {
	ID           int64  `json:"id"`
	ConceptID    string `json:"concept_id"`
	PredictionID string `json:"prediction_id"`

	PredictedRevenue float64       `json:"predicted_revenue_eur"`
	PredictedScore   float64       `json:"predicted_score"`
	Features         *SiteFeatures `json:"features_used,omitempty"`

	ActualRevenue float64   `json:"actual_revenue_eur"`
	VariancePct   float64   `json:"variance_pct"` // (actual − predicted) / predicted × 100
	OpenedAt      time.Time `json:"opened_at"`

	UsedInTraining bool    `json:"used_in_training"`
	TrainingWeight float64 `json:"training_weight"`

	CreatedAt time.Time `json:"created_at"`
}
