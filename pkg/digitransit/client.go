// Package digitransit wraps the Digitransit (Pelias) geocoding API used for
// forward and reverse geocoding of Finnish addresses.
package digitransit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.digitransit.fi/geocoding/v1"

// Location is a forward geocode result.
type Location struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	PostalCode string  `json:"postal_code,omitempty"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Address is a reverse geocode result.
type Address struct {
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Locality    string `json:"locality,omitempty"`
}

// String renders the address in the "Street 12, 00100 Helsinki" form.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(a.Street)
	if a.HouseNumber != "" {
		b.WriteString(" " + a.HouseNumber)
	}
	if a.PostalCode != "" || a.Locality != "" {
		b.WriteString(", " + strings.TrimSpace(a.PostalCode+" "+a.Locality))
	}
	return b.String()
}

// Client performs geocoding lookups. Both methods return (nil, nil) when the
// provider has no result for the input.
type Client interface {
	Geocode(ctx context.Context, address string) (*Location, error)
	Reverse(ctx context.Context, lat, lng float64) (*Address, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit sets the request rate limit (requests per second).
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Digitransit geocoding client. The API key may be empty
// for the public rate-limited endpoint.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// peliasResponse is the subset of the GeoJSON FeatureCollection we read.
type peliasResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
		Properties struct {
			Label       string  `json:"label"`
			Street      string  `json:"street"`
			HouseNumber string  `json:"housenumber"`
			PostalCode  string  `json:"postalcode"`
			Locality    string  `json:"locality"`
			Confidence  float64 `json:"confidence"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *httpClient) Geocode(ctx context.Context, address string) (*Location, error) {
	params := url.Values{}
	params.Set("text", address)
	params.Set("size", "1")
	params.Set("boundary.country", "FIN")

	var resp peliasResponse
	if err := c.get(ctx, "/search", params, &resp); err != nil {
		return nil, eris.Wrap(err, "digitransit: geocode")
	}
	if len(resp.Features) == 0 {
		return nil, nil
	}

	f := resp.Features[0]
	if len(f.Geometry.Coordinates) < 2 {
		return nil, nil
	}
	return &Location{
		Latitude:   f.Geometry.Coordinates[1],
		Longitude:  f.Geometry.Coordinates[0],
		PostalCode: f.Properties.PostalCode,
		Label:      f.Properties.Label,
		Confidence: f.Properties.Confidence,
	}, nil
}

func (c *httpClient) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	params := url.Values{}
	params.Set("point.lat", fmt.Sprintf("%.6f", lat))
	params.Set("point.lon", fmt.Sprintf("%.6f", lng))
	params.Set("size", "1")

	var resp peliasResponse
	if err := c.get(ctx, "/reverse", params, &resp); err != nil {
		return nil, eris.Wrap(err, "digitransit: reverse geocode")
	}
	if len(resp.Features) == 0 {
		return nil, nil
	}

	p := resp.Features[0].Properties
	if p.Street == "" || p.Locality == "" {
		return nil, nil
	}
	return &Address{
		Street:      p.Street,
		HouseNumber: p.HouseNumber,
		PostalCode:  p.PostalCode,
		Locality:    p.Locality,
	}, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if c.apiKey != "" {
		req.Header.Set("digitransit-subscription-key", c.apiKey)
	}

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
