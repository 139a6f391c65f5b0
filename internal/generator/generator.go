// Package generator samples, scores and deduplicates candidate sites for a
// city into a ranked address list.
package generator

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nessa01macias/spotlight/internal/features"
	"github.com/nessa01macias/spotlight/internal/geo"
	"github.com/nessa01macias/spotlight/internal/model"
	"github.com/nessa01macias/spotlight/pkg/digitransit"
	"github.com/nessa01macias/spotlight/pkg/overpass"
)

// Pipeline stage names, in emission order.
const (
	StageLocationResolution = "location-resolution"
	StageDemographicScoring = "demographic-scoring"
	StageCompetitionScoring = "competition-scoring"
	StageTransitScoring     = "transit-scoring"
	StageTrafficScoring     = "traffic-scoring"
	StageRentLookup         = "rent-lookup"
	StageRevenuePrediction  = "revenue-prediction"
)

// Stages lists every pipeline stage in order.
var Stages = []string{
	StageLocationResolution,
	StageDemographicScoring,
	StageCompetitionScoring,
	StageTransitScoring,
	StageTrafficScoring,
	StageRentLookup,
	StageRevenuePrediction,
}

// Stage progress values passed to a StageReporter.
const (
	StageRunning = "running"
	StageDone    = "done"
	StageWarn    = "warn"
	StageFail    = "fail"
)

// StageReporter receives stage transitions during generation. A nil reporter
// is valid and drops all updates.
type StageReporter func(stage, status, message string)

const (
	// maxAreas caps how many seed areas one run samples.
	maxAreas = 4
	// gridStep is the sampling offset in degrees, roughly 300 m.
	gridStep = 0.003
	// minSeparationM is the dedup threshold between returned sites.
	minSeparationM = 80.0
	// defaultBaseRevenue anchors the revenue band when no concept is given.
	defaultBaseRevenue = 150000
	// defaultLimit bounds the returned list when the caller does not.
	defaultLimit = 10
)

var gridOffsets = []float64{-gridStep, 0, gridStep}

// Params configures one generation run.
type Params struct {
	City         string
	Category     string
	Concept      *model.Concept
	Limit        int
	IncludeCrime bool
}

// Generator produces ranked site candidates.
type Generator struct {
	geocoder   digitransit.Client
	osm        overpass.Client
	population features.PopulationProvider
	log        *zap.Logger
}

// New wires a Generator. A nil population provider falls back to the static
// Helsinki table.
func New(geocoder digitransit.Client, osm overpass.Client, population features.PopulationProvider) *Generator {
	if population == nil {
		population = features.StaticPopulation{}
	}
	return &Generator{
		geocoder:   geocoder,
		osm:        osm,
		population: population,
		log:        zap.L().With(zap.String("component", "generator")),
	}
}

// Generate runs the full sampling pipeline. Per-area failures are logged and
// skipped; an unsupported city returns an empty list, not an error. The only
// hard failure is context cancellation.
func (g *Generator) Generate(ctx context.Context, params Params, report StageReporter) ([]model.Candidate, error) {
	if report == nil {
		report = func(string, string, string) {}
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	report(StageLocationResolution, StageRunning, "resolving seed areas")
	areas := areasForCity(params.City)
	if len(areas) == 0 {
		g.log.Warn("no seed areas for city", zap.String("city", params.City))
		report(StageLocationResolution, StageWarn, fmt.Sprintf("no coverage for %q", params.City))
		return []model.Candidate{}, nil
	}
	if len(areas) > maxAreas {
		areas = areas[:maxAreas]
	}
	report(StageLocationResolution, StageDone, fmt.Sprintf("%d areas resolved", len(areas)))

	report(StageDemographicScoring, StageRunning, "")
	report(StageCompetitionScoring, StageRunning, "")
	report(StageTransitScoring, StageRunning, "")

	var raw []model.Candidate
	fallbacks := map[string]int{}
	for _, area := range areas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates := g.sampleArea(ctx, area, params, fallbacks)
		raw = append(raw, candidates...)
	}

	reportScoring := func(stage, factor string) {
		if n := fallbacks[factor]; n > 0 {
			report(stage, StageWarn, fmt.Sprintf("%d points used fallback data", n))
		} else {
			report(stage, StageDone, "")
		}
	}
	reportScoring(StageDemographicScoring, "population")
	reportScoring(StageCompetitionScoring, "competition_inverse")
	reportScoring(StageTransitScoring, "transit_access")

	report(StageTrafficScoring, StageRunning, "")
	report(StageTrafficScoring, StageDone, "static heuristic")
	report(StageRentLookup, StageRunning, "")
	report(StageRentLookup, StageDone, "market averages")

	report(StageRevenuePrediction, StageRunning, "")
	kept := dedupe(raw, minSeparationM)
	if len(kept) > limit {
		kept = kept[:limit]
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}
	report(StageRevenuePrediction, StageDone, fmt.Sprintf("%d candidates ranked", len(kept)))

	g.log.Info("generation finished",
		zap.String("city", params.City),
		zap.Int("sampled", len(raw)),
		zap.Int("returned", len(kept)))
	return kept, nil
}

// sampleArea scores the 3x3 grid around one area centroid. Point-level
// failures degrade to neutral sub-scores; only context cancellation stops
// the sweep early.
func (g *Generator) sampleArea(ctx context.Context, area seedArea, params Params, fallbacks map[string]int) []model.Candidate {
	var out []model.Candidate
	for _, dLat := range gridOffsets {
		for _, dLng := range gridOffsets {
			if ctx.Err() != nil {
				return out
			}
			lat := area.Centroid.Lat + dLat
			lng := area.Centroid.Lng + dLng
			c, err := g.scorePoint(ctx, lat, lng, area, params, fallbacks)
			if err != nil {
				g.log.Warn("point skipped",
					zap.String("area", area.ID),
					zap.Float64("lat", lat), zap.Float64("lng", lng),
					zap.Error(err))
				continue
			}
			out = append(out, *c)
		}
	}
	return out
}

func (g *Generator) scorePoint(ctx context.Context, lat, lng float64, area seedArea, params Params, fallbacks map[string]int) (*model.Candidate, error) {
	var (
		address    string
		population int
		popOK      bool
		compCount  int
		compOK     bool
		transit    *overpass.TransitSummary
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		addr, err := g.geocoder.Reverse(gctx, lat, lng)
		if err == nil && addr != nil {
			address = addr.String()
		}
		return nil
	})
	eg.Go(func() error {
		total, _, err := g.population.PopulationNear(gctx, lat, lng, 1000)
		if err == nil {
			population = total
			popOK = true
		}
		return nil
	})
	eg.Go(func() error {
		competitors, err := g.osm.Competitors(gctx, lat, lng, 1000, params.Category)
		if err == nil {
			compCount = len(competitors)
			compOK = true
		}
		return nil
	})
	eg.Go(func() error {
		ts, err := g.osm.TransitStops(gctx, lat, lng, 800)
		if err == nil {
			transit = ts
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if address == "" {
		address = syntheticAddress(lat, lng)
	}

	scores := map[string]subScore{
		"income_fit":     incomeSubScore(),
		"traffic_access": trafficSubScore(),
	}
	if popOK {
		scores["population"] = populationSubScore(population)
	} else {
		scores["population"] = neutralScore("statistics_finland_grid")
		fallbacks["population"]++
	}
	if compOK && popOK {
		scores["competition_inverse"] = competitionSubScore(compCount, population)
	} else {
		scores["competition_inverse"] = neutralScore("openstreetmap_overpass")
		fallbacks["competition_inverse"]++
	}
	if transit != nil {
		scores["transit_access"] = transitSubScore(transit.NearestMetroM, transit.NearestTramM)
	} else {
		scores["transit_access"] = neutralScore("openstreetmap_overpass")
		fallbacks["transit_access"]++
	}
	if params.IncludeCrime {
		scores["crime"] = neutralScore("static_estimate")
	}

	total, provenance := combine(scores)
	confidence := candidateConfidence(
		scores["population"].Coverage,
		scores["competition_inverse"].Coverage,
		scores["transit_access"].Coverage,
	)
	decision, reasoning := decide(total, confidence)

	base := defaultBaseRevenue
	if params.Concept != nil {
		base = params.Concept.BaseRevenue
	}

	metrics := model.CandidateMetrics{Population: population, Competitors: compCount}
	if transit != nil {
		metrics.NearestMetroM = transit.NearestMetroM
		metrics.NearestTramM = transit.NearestTramM
	}

	return &model.Candidate{
		Address:       address,
		Latitude:      lat,
		Longitude:     lng,
		AreaID:        area.ID,
		Score:         total,
		RevenueMinEUR: int(float64(base) * total / 100 * 0.65),
		RevenueMaxEUR: int(float64(base) * total / 100 * 1.20),
		Confidence:    confidence,
		Coverage: map[string]float64{
			"population":  scores["population"].Coverage,
			"competition": scores["competition_inverse"].Coverage,
			"transit":     scores["transit_access"].Coverage,
		},
		Why:               whyHighlights(scores),
		Decision:          decision,
		DecisionReasoning: reasoning,
		Provenance:        provenance,
		Metrics:           metrics,
	}, nil
}

// dedupe sorts by score descending and greedily keeps candidates at least
// minSepM apart, so ties resolve in favor of the higher-scoring point.
func dedupe(candidates []model.Candidate, minSepM float64) []model.Candidate {
	sorted := append([]model.Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var kept []model.Candidate
	for _, c := range sorted {
		tooClose := false
		for _, k := range kept {
			d := geo.HaversineM(
				geo.Point{Lat: c.Latitude, Lng: c.Longitude},
				geo.Point{Lat: k.Latitude, Lng: k.Longitude},
			)
			if d <= minSepM {
				tooClose = true
				break
			}
		}
		if !tooClose {
			kept = append(kept, c)
		}
	}
	return kept
}
