package model

// Decision labels for generated candidates.
const (
	DecisionMakeOffer = "MAKE_OFFER"
	DecisionNegotiate = "NEGOTIATE"
	DecisionPass      = "PASS"
)

// FactorProvenance is the per-factor audit record attached to a candidate.
type FactorProvenance struct {
	Score         float64  `json:"score"`
	Weight        float64  `json:"weight"`
	WeightedScore float64  `json:"weighted_score"`
	Source        string   `json:"source"`
	Coverage      float64  `json:"coverage"`
	RawValue      *float64 `json:"raw_value"`
	RawUnit       string   `json:"raw_unit"`
}

// Provenance aggregates the per-factor audit trail for one candidate.
type Provenance struct {
	Factors         map[string]FactorProvenance `json:"factors"`
	TotalScore      float64                     `json:"total_score"`
	ConfidenceBasis string                      `json:"confidence_basis"`
}

// CandidateMetrics carries the raw values behind a candidate's sub-scores.
type CandidateMetrics struct {
	Population    int      `json:"population"`
	Competitors   int      `json:"competitors"`
	NearestMetroM *float64 `json:"nearest_metro_m,omitempty"`
	NearestTramM  *float64 `json:"nearest_tram_m,omitempty"`
}

// Candidate is one generated (address, coordinate, score, decision) tuple.
// Rank is assigned after deduplication, 1-based in descending score order.
type Candidate struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	AreaID    string  `json:"area_id,omitempty"`

	Score         float64            `json:"score"`
	RevenueMinEUR int                `json:"revenue_min_eur"`
	RevenueMaxEUR int                `json:"revenue_max_eur"`
	Confidence    float64            `json:"confidence"`
	Coverage      map[string]float64 `json:"coverage"`

	Why               []string   `json:"why"`
	Decision          string     `json:"decision"`
	DecisionReasoning string     `json:"decision_reasoning"`
	Provenance        Provenance `json:"provenance"`

	Metrics CandidateMetrics `json:"metrics"`
	Rank    int              `json:"rank,omitempty"`
}
