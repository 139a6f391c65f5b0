// Package overpass queries the OpenStreetMap Overpass API for competitor
// POIs, transit stops, and walkability counts around a point.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/nessa01macias/spotlight/internal/geo"
)

const defaultBaseURL = "https://overpass-api.de/api/interpreter"

// Competitor is one competing POI with its distance from the query point.
type Competitor struct {
	Name      string  `json:"name"`
	Amenity   string  `json:"amenity"`
	Cuisine   string  `json:"cuisine,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	DistanceM float64 `json:"distance_m"`
}

// Stop is one transit stop with its distance from the query point.
type Stop struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	DistanceM float64 `json:"distance_m"`
}

// TransitSummary reports nearby stops grouped by mode. Nearest distances are
// nil when no stop of that mode exists within the radius.
type TransitSummary struct {
	MetroStations []Stop   `json:"metro_stations"`
	TramStops     []Stop   `json:"tram_stops"`
	NearestMetroM *float64 `json:"nearest_metro_distance_m,omitempty"`
	NearestTramM  *float64 `json:"nearest_tram_distance_m,omitempty"`
}

// Client queries Overpass. Results are sorted nearest-first.
type Client interface {
	Competitors(ctx context.Context, lat, lng float64, radiusM int, category string) ([]Competitor, error)
	TransitStops(ctx context.Context, lat, lng float64, radiusM int) (*TransitSummary, error)
	WalkabilityPOIs(ctx context.Context, lat, lng float64, radiusM int) (int, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default Overpass endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit sets the request rate limit (requests per second). The public
// Overpass instance throttles aggressively, so the default is conservative.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an Overpass API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(1, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// amenityFilters maps a concept category to the OSM amenity tags that count
// as competition for it.
var amenityFilters = map[string][]string{
	"qsr":           {"fast_food", "restaurant"},
	"fast_casual":   {"restaurant", "cafe"},
	"coffee":        {"cafe"},
	"casual_dining": {"restaurant"},
	"fine_dining":   {"restaurant"},
}

func filtersFor(category string) []string {
	if f, ok := amenityFilters[strings.ToLower(category)]; ok {
		return f
	}
	return []string{"restaurant", "fast_food", "cafe"}
}

type overpassResponse struct {
	Elements []struct {
		Type string  `json:"type"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
		Tags struct {
			Name            string `json:"name"`
			Amenity         string `json:"amenity"`
			Cuisine         string `json:"cuisine"`
			Railway         string `json:"railway"`
			PublicTransport string `json:"public_transport"`
		} `json:"tags"`
	} `json:"elements"`
}

func (c *httpClient) Competitors(ctx context.Context, lat, lng float64, radiusM int, category string) ([]Competitor, error) {
	var nodes strings.Builder
	for _, amenity := range filtersFor(category) {
		fmt.Fprintf(&nodes, "node[\"amenity\"=%q](around:%d,%f,%f);\n", amenity, radiusM, lat, lng)
	}
	query := fmt.Sprintf("[out:json][timeout:25];\n(\n%s);\nout body;", nodes.String())

	var resp overpassResponse
	if err := c.post(ctx, query, &resp); err != nil {
		return nil, eris.Wrap(err, "overpass: competitors")
	}

	origin := geo.Point{Lat: lat, Lng: lng}
	var competitors []Competitor
	for _, el := range resp.Elements {
		if el.Type != "node" {
			continue
		}
		name := el.Tags.Name
		if name == "" {
			name = "Unknown"
		}
		competitors = append(competitors, Competitor{
			Name:      name,
			Amenity:   el.Tags.Amenity,
			Cuisine:   el.Tags.Cuisine,
			Latitude:  el.Lat,
			Longitude: el.Lon,
			DistanceM: geo.HaversineM(origin, geo.Point{Lat: el.Lat, Lng: el.Lon}),
		})
	}
	sort.Slice(competitors, func(i, j int) bool { return competitors[i].DistanceM < competitors[j].DistanceM })
	return competitors, nil
}

func (c *httpClient) TransitStops(ctx context.Context, lat, lng float64, radiusM int) (*TransitSummary, error) {
	query := fmt.Sprintf(`[out:json][timeout:25];
(
node["railway"="subway_entrance"](around:%[1]d,%[2]f,%[3]f);
node["railway"="tram_stop"](around:%[1]d,%[2]f,%[3]f);
);
out body;`, radiusM, lat, lng)

	var resp overpassResponse
	if err := c.post(ctx, query, &resp); err != nil {
		return nil, eris.Wrap(err, "overpass: transit stops")
	}

	origin := geo.Point{Lat: lat, Lng: lng}
	summary := &TransitSummary{}
	for _, el := range resp.Elements {
		if el.Type != "node" {
			continue
		}
		name := el.Tags.Name
		if name == "" {
			name = "Unknown"
		}
		stop := Stop{
			Name:      name,
			Latitude:  el.Lat,
			Longitude: el.Lon,
			DistanceM: geo.HaversineM(origin, geo.Point{Lat: el.Lat, Lng: el.Lon}),
		}
		switch el.Tags.Railway {
		case "subway_entrance":
			summary.MetroStations = append(summary.MetroStations, stop)
		case "tram_stop":
			summary.TramStops = append(summary.TramStops, stop)
		}
	}

	sort.Slice(summary.MetroStations, func(i, j int) bool {
		return summary.MetroStations[i].DistanceM < summary.MetroStations[j].DistanceM
	})
	sort.Slice(summary.TramStops, func(i, j int) bool {
		return summary.TramStops[i].DistanceM < summary.TramStops[j].DistanceM
	})

	if len(summary.MetroStations) > 0 {
		d := summary.MetroStations[0].DistanceM
		summary.NearestMetroM = &d
	}
	if len(summary.TramStops) > 0 {
		d := summary.TramStops[0].DistanceM
		summary.NearestTramM = &d
	}
	return summary, nil
}

func (c *httpClient) WalkabilityPOIs(ctx context.Context, lat, lng float64, radiusM int) (int, error) {
	query := fmt.Sprintf(`[out:json][timeout:25];
(
node["amenity"](around:%[1]d,%[2]f,%[3]f);
node["shop"](around:%[1]d,%[2]f,%[3]f);
);
out body;`, radiusM, lat, lng)

	var resp overpassResponse
	if err := c.post(ctx, query, &resp); err != nil {
		return 0, eris.Wrap(err, "overpass: walkability pois")
	}
	return len(resp.Elements), nil
}

func (c *httpClient) post(ctx context.Context, query string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return eris.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
