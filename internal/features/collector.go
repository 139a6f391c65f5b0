package features

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nessa01macias/spotlight/internal/model"
	"github.com/nessa01macias/spotlight/pkg/digitransit"
	"github.com/nessa01macias/spotlight/pkg/overpass"
	"github.com/nessa01macias/spotlight/pkg/statfin"
)

const (
	competitorRadiusM  = 1000
	transitRadiusM     = 800
	walkabilityRadiusM = 500
	populationRadiusM  = 1000
)

// Collector assembles SiteFeatures for a point by querying the demographic,
// competition and transit providers in parallel. Provider failures degrade to
// defaulted measurements instead of failing the whole collection.
type Collector struct {
	geocoder   digitransit.Client
	osm        overpass.Client
	demo       statfin.Client
	population PopulationProvider
	log        *zap.Logger
}

// NewCollector wires a Collector. A nil population provider falls back to the
// static Helsinki table.
func NewCollector(geocoder digitransit.Client, osm overpass.Client, demo statfin.Client, population PopulationProvider) *Collector {
	if population == nil {
		population = StaticPopulation{}
	}
	return &Collector{
		geocoder:   geocoder,
		osm:        osm,
		demo:       demo,
		population: population,
		log:        zap.L().With(zap.String("component", "features")),
	}
}

// CollectAddress geocodes an address and collects features at the resolved
// point. It fails only when the address cannot be resolved at all.
func (c *Collector) CollectAddress(ctx context.Context, address, category string) (*model.SiteFeatures, error) {
	loc, err := c.geocoder.Geocode(ctx, address)
	if err != nil {
		return nil, eris.Wrapf(err, "features: geocode %q", address)
	}
	if loc == nil {
		return nil, eris.Errorf("features: address %q not found", address)
	}

	f := c.CollectPoint(ctx, loc.Latitude, loc.Longitude, category)
	f.Address = address
	if loc.PostalCode != "" {
		f.PostalCode = loc.PostalCode
	}
	return f, nil
}

// CollectPoint gathers all measurable features around a coordinate. Providers
// run concurrently and write into worker-local results; a provider error
// leaves its fields defaulted. Only context cancellation aborts collection.
func (c *Collector) CollectPoint(ctx context.Context, lat, lng float64, category string) *model.SiteFeatures {
	var (
		popRes     *populationResult
		demoRes    *demographicsResult
		compCount  *int
		transitRes *overpass.TransitSummary
		poiCount   *int
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pop, density, err := c.population.PopulationNear(gctx, lat, lng, populationRadiusM)
		if err != nil {
			c.log.Warn("population lookup failed", zap.Error(err))
			return nil
		}
		popRes = &populationResult{total: pop, density: density}
		return nil
	})

	g.Go(func() error {
		res, err := c.collectDemographics(gctx, lat, lng)
		if err != nil {
			c.log.Warn("demographics lookup failed", zap.Error(err))
			return nil
		}
		demoRes = res
		return nil
	})

	g.Go(func() error {
		competitors, err := c.osm.Competitors(gctx, lat, lng, competitorRadiusM, category)
		if err != nil {
			c.log.Warn("competitor lookup failed", zap.Error(err))
			return nil
		}
		n := len(competitors)
		compCount = &n
		return nil
	})

	g.Go(func() error {
		transit, err := c.osm.TransitStops(gctx, lat, lng, transitRadiusM)
		if err != nil {
			c.log.Warn("transit lookup failed", zap.Error(err))
			return nil
		}
		transitRes = transit
		return nil
	})

	g.Go(func() error {
		count, err := c.osm.WalkabilityPOIs(gctx, lat, lng, walkabilityRadiusM)
		if err != nil {
			c.log.Warn("walkability lookup failed", zap.Error(err))
			return nil
		}
		poiCount = &count
		return nil
	})

	// Workers swallow their own errors, so Wait only observes ctx cancellation.
	_ = g.Wait()

	return c.merge(lat, lng, popRes, demoRes, compCount, transitRes, poiCount)
}

type populationResult struct {
	total   int
	density float64
}

type demographicsResult struct {
	address      string
	areaName     string
	postalCode   string
	medianIncome float64
	density      float64
}

func (c *Collector) collectDemographics(ctx context.Context, lat, lng float64) (*demographicsResult, error) {
	res := &demographicsResult{}

	addr, err := c.geocoder.Reverse(ctx, lat, lng)
	if err != nil {
		return nil, eris.Wrap(err, "features: reverse geocode")
	}
	if addr != nil {
		res.postalCode = addr.PostalCode
		res.address = addr.String()
		res.areaName = addr.Locality
	}
	if res.postalCode == "" {
		return res, nil
	}

	demo, err := c.demo.DemographicsByPostalCode(ctx, res.postalCode)
	if err != nil {
		return nil, eris.Wrapf(err, "features: demographics for %s", res.postalCode)
	}
	if demo == nil {
		return res, nil
	}
	if res.areaName == "" {
		res.areaName = demo.AreaName
	}
	res.medianIncome = demo.MedianIncome
	res.density = demo.PopulationDensity
	return res, nil
}

func (c *Collector) merge(lat, lng float64, pop *populationResult, demo *demographicsResult, compCount *int, transit *overpass.TransitSummary, poiCount *int) *model.SiteFeatures {
	f := &model.SiteFeatures{Latitude: lat, Longitude: lng}
	f.Population1km = model.Defaulted(0)
	f.PopulationDensity = model.Defaulted(0)
	f.MedianIncome = model.Defaulted(0)
	f.NearestMetroM = model.Defaulted(0)
	f.NearestTramM = model.Defaulted(0)
	f.CompetitorsCount = model.Defaulted(0)
	f.CompetitorsPer1k = model.Defaulted(0)
	f.WalkabilityPOIs = model.Defaulted(0)

	if pop != nil {
		f.Population1km = model.Measured(float64(pop.total))
		f.PopulationDensity = model.Measured(pop.density)
	}
	if demo != nil {
		f.Address = demo.address
		f.AreaName = demo.areaName
		f.PostalCode = demo.postalCode
		if demo.medianIncome > 0 {
			f.MedianIncome = model.Measured(demo.medianIncome)
		}
		if demo.density > 0 && !f.PopulationDensity.Measured {
			f.PopulationDensity = model.Measured(demo.density)
		}
	}
	if compCount != nil {
		f.CompetitorsCount = model.Measured(float64(*compCount))
	}
	if transit != nil {
		if transit.NearestMetroM != nil {
			f.NearestMetroM = model.Measured(*transit.NearestMetroM)
		}
		if transit.NearestTramM != nil {
			f.NearestTramM = model.Measured(*transit.NearestTramM)
		}
	}
	if poiCount != nil {
		f.WalkabilityPOIs = model.Measured(float64(*poiCount))
	}

	if f.Population1km.Measured && f.Population1km.Value > 0 && f.CompetitorsCount.Measured {
		f.CompetitorsPer1k = model.Measured(f.CompetitorsCount.Value / (f.Population1km.Value / 1000))
	}
	if f.Address == "" {
		f.Address = fmt.Sprintf("%.4f, %.4f", lat, lng)
	}
	return f
}
