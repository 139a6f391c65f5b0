package generator

import (
	"fmt"
	"math"
	"strings"

	"github.com/nessa01macias/spotlight/internal/geo"
)

// seedArea is one pre-enumerated search centroid.
type seedArea struct {
	ID       string
	Name     string
	Centroid geo.Point
}

// helsinkiAreas lists dense commercial districts in priority order. The
// generator samples the top maxAreas of them.
var helsinkiAreas = []seedArea{
	{"kamppi", "Kamppi", geo.Point{Lat: 60.1699, Lng: 24.9342}},
	{"kallio", "Kallio", geo.Point{Lat: 60.1847, Lng: 24.9504}},
	{"pasila", "Pasila", geo.Point{Lat: 60.1989, Lng: 24.9339}},
	{"toolo", "Töölö", geo.Point{Lat: 60.1777, Lng: 24.9157}},
	{"punavuori", "Punavuori", geo.Point{Lat: 60.1585, Lng: 24.9398}},
	{"kruununhaka", "Kruununhaka", geo.Point{Lat: 60.1729, Lng: 24.9560}},
	{"ullanlinna", "Ullanlinna", geo.Point{Lat: 60.1586, Lng: 24.9519}},
	{"eira", "Eira", geo.Point{Lat: 60.1543, Lng: 24.9374}},
}

// areasForCity resolves seed areas for a city. The capital-region cities
// share the Helsinki district set; anything else yields nil.
func areasForCity(city string) []seedArea {
	switch strings.ToLower(strings.TrimSpace(city)) {
	case "helsinki", "espoo", "vantaa":
		return helsinkiAreas
	default:
		return nil
	}
}

// syntheticStreets backs the deterministic address fallback.
var syntheticStreets = []string{
	"Mannerheimintie", "Aleksanterinkatu", "Esplanadi", "Fredrikinkatu",
	"Bulevardi", "Lönnrotinkatu", "Annankatu", "Unioninkatu",
	"Kaivokatu", "Mikonkatu", "Pohjoisesplanadi", "Eteläesplanadi",
}

// syntheticAddress derives a plausible address from coordinates alone, used
// when reverse geocoding is unavailable. The same point always produces the
// same address.
func syntheticAddress(lat, lng float64) string {
	streetIdx := int((lat+lng)*1000) % len(syntheticStreets)
	if streetIdx < 0 {
		streetIdx += len(syntheticStreets)
	}
	house := int(math.Abs(lat-60.1)*1000)%99 + 1
	postalOffset := int(lng*1000) % 890
	if postalOffset < 0 {
		postalOffset += 890
	}
	postal := fmt.Sprintf("00%d", 100+postalOffset)
	return fmt.Sprintf("%s %d, %s Helsinki", syntheticStreets[streetIdx], house, postal)
}
