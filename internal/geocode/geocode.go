// Package geocode resolves city/country pairs to coordinates for scheduled
// retrievals.
package geocode

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
)

// LookupFunc resolves an address; geocoder.Geocoding in production.
type LookupFunc func(geocoder.Address) (geocoder.Location, error)

// Resolver caches lookups so each place is geocoded once.
type Resolver struct {
	lookup LookupFunc

	mu    sync.Mutex
	cache map[string]geocoder.Location
}

// New returns a Resolver backed by the Google geocoding API.
func New(apiKey string) *Resolver {
	geocoder.ApiKey = apiKey
	return NewWithLookup(geocoder.Geocoding)
}

// NewWithLookup returns a Resolver using lookup.
func NewWithLookup(lookup LookupFunc) *Resolver {
	return &Resolver{
		lookup: lookup,
		cache:  make(map[string]geocoder.Location),
	}
}

// Resolve returns the latitude and longitude of city in country.
func (r *Resolver) Resolve(city, country string) (float64, float64, error) {
	key := strings.ToLower(strings.TrimSpace(city) + "," + strings.TrimSpace(country))

	r.mu.Lock()
	defer r.mu.Unlock()

	if loc, ok := r.cache[key]; ok {
		return loc.Latitude, loc.Longitude, nil
	}

	loc, err := r.lookup(geocoder.Address{City: city, Country: country})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s,%s: %w", city, country, err)
	}
	r.cache[key] = loc
	return loc.Latitude, loc.Longitude, nil
}
