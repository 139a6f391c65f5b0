// Package statfin fetches postal-code demographics from the Statistics
// Finland PAAVO dataset, with a static fallback table for common Helsinki
// metro postal codes when the API is unreachable.
package statfin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://pxdata.stat.fi/PxWeb/api/v1"
	paavoPath      = "/en/Postinumeroalueittainen_avoin_tieto/uusin/paavo_pxt_12f7.px"

	// PAAVO updates annually; cached entries stay valid for a long time.
	cacheTTL = 30 * 24 * time.Hour
)

// Demographics holds PAAVO-derived postal area statistics.
type Demographics struct {
	PostalCode          string  `json:"postal_code"`
	AreaName            string  `json:"area_name"`
	Population          int     `json:"population"`
	PopulationDensity   float64 `json:"population_density"` // per km²
	MedianIncome        float64 `json:"median_income"`
	MeanIncome          float64 `json:"mean_income"`
	HigherEducationPct  float64 `json:"higher_education_percent"`
}

// Client fetches demographics by postal code. Returns (nil, nil) when the
// postal code is unknown to both the API and the fallback table.
type Client interface {
	DemographicsByPostalCode(ctx context.Context, postalCode string) (*Demographics, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the PxWeb API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	demo    *Demographics
	fetched time.Time
}

// NewClient creates a PAAVO demographics client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(5, 5),
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) DemographicsByPostalCode(ctx context.Context, postalCode string) (*Demographics, error) {
	c.mu.Lock()
	if entry, ok := c.cache[postalCode]; ok && time.Since(entry.fetched) < cacheTTL {
		c.mu.Unlock()
		return entry.demo, nil
	}
	c.mu.Unlock()

	demo, err := c.fetchPxWeb(ctx, postalCode)
	if err != nil {
		zap.L().Debug("statfin: pxweb fetch failed, trying fallback",
			zap.String("postal_code", postalCode),
			zap.Error(err),
		)
	}
	if demo == nil {
		demo = fallbackDemographics(postalCode)
	}
	if demo == nil {
		return nil, nil
	}

	c.mu.Lock()
	c.cache[postalCode] = cacheEntry{demo: demo, fetched: time.Now()}
	c.mu.Unlock()
	return demo, nil
}

// pxwebQuery is the JSON-Stat 2.0 query body for the PAAVO table.
type pxwebQuery struct {
	Query []pxwebDimension `json:"query"`
	Resp  pxwebFormat      `json:"response"`
}

type pxwebDimension struct {
	Code      string         `json:"code"`
	Selection pxwebSelection `json:"selection"`
}

type pxwebSelection struct {
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

type pxwebFormat struct {
	Format string `json:"format"`
}

// paavoFields are the PAAVO variable codes we request, in order.
var paavoFields = []string{
	"pinta_ala", // surface area m²
	"he_vakiy",  // total population
	"hr_mtu",    // median income
	"hr_ktu",    // mean income
	"ko_yl_kork", // higher university degree
	"ko_ika18y", // adults 18+
}

type pxwebResult struct {
	Value     []float64 `json:"value"`
	Dimension struct {
		Tiedot struct {
			Category struct {
				Index map[string]int `json:"index"`
			} `json:"category"`
		} `json:"Tiedot"`
		Postinumeroalue struct {
			Category struct {
				Label map[string]string `json:"label"`
			} `json:"category"`
		} `json:"Postinumeroalue"`
	} `json:"dimension"`
}

func (c *httpClient) fetchPxWeb(ctx context.Context, postalCode string) (*Demographics, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "statfin: rate limit wait")
	}

	body := pxwebQuery{
		Query: []pxwebDimension{
			{Code: "Postinumeroalue", Selection: pxwebSelection{Filter: "item", Values: []string{postalCode}}},
			{Code: "Tiedot", Selection: pxwebSelection{Filter: "item", Values: paavoFields}},
			{Code: "Vuosi", Selection: pxwebSelection{Filter: "top", Values: []string{"1"}}},
		},
		Resp: pxwebFormat{Format: "json-stat2"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "statfin: marshal query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+paavoPath, strings.NewReader(string(payload)))
	if err != nil {
		return nil, eris.Wrap(err, "statfin: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "statfin: do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("statfin: status %d: %s", resp.StatusCode, string(b))
	}

	var result pxwebResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, eris.Wrap(err, "statfin: decode response")
	}
	if len(result.Value) == 0 {
		return nil, nil
	}

	valueOf := func(field string) float64 {
		idx, ok := result.Dimension.Tiedot.Category.Index[field]
		if !ok || idx >= len(result.Value) {
			return 0
		}
		return result.Value[idx]
	}

	population := valueOf("he_vakiy")
	areaKm2 := valueOf("pinta_ala") / 1_000_000
	density := 0.0
	if areaKm2 > 0 {
		density = population / areaKm2
	}

	adults := valueOf("ko_ika18y")
	higherEdPct := 0.0
	if adults > 0 {
		higherEdPct = valueOf("ko_yl_kork") / adults * 100
	}

	// Label format: "00100  Helsinki keskusta - Etu-Töölö (Helsinki)".
	areaName := postalCode
	if label, ok := result.Dimension.Postinumeroalue.Category.Label[postalCode]; ok {
		if _, name, found := strings.Cut(label, "  "); found {
			areaName = name
		}
	}

	return &Demographics{
		PostalCode:         postalCode,
		AreaName:           areaName,
		Population:         int(population),
		PopulationDensity:  density,
		MedianIncome:       valueOf("hr_mtu"),
		MeanIncome:         valueOf("hr_ktu"),
		HigherEducationPct: higherEdPct,
	}, nil
}
