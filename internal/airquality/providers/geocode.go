package providers

import (
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

var geocoderMu sync.Mutex

// ResolveCoordinates looks up a place with the Google geocoding API.
func ResolveCoordinates(apiKey string, place Place) (lat, lon float64, err error) {
	if apiKey == "" {
		return 0, 0, fmt.Errorf("geocoding requires an api key")
	}

	// The geocoder package keeps its key in a package variable.
	geocoderMu.Lock()
	defer geocoderMu.Unlock()
	geocoder.ApiKey = apiKey

	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    place.City,
		State:   place.State,
		Country: place.Country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s, %s: %w", place.City, place.Country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
