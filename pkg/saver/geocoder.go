package saver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Geocoder resolves an address to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// NoopGeocoder never resolves anything; used when geocoding is disabled
type NoopGeocoder struct{}

// Geocode always reports an unresolved address
func (NoopGeocoder) Geocode(_ context.Context, _ string) (float64, float64, error) {
	return 0, 0, errors.New("geocoding is disabled")
}

// HTTPGeocoder resolves addresses against a Nominatim-style search endpoint
type HTTPGeocoder struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGeocoder creates a geocoder against the given base URL
func NewHTTPGeocoder(baseURL string, timeout time.Duration) *HTTPGeocoder {
	return &HTTPGeocoder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type geocodeResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address, returning an error when the service is
// unreachable or finds no match
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	endpoint := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", g.baseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to build geocode request")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, errors.Wrap(err, "geocode request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, errors.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var results []geocodeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, errors.Wrap(err, "failed to decode geocode response")
	}
	if len(results) == 0 {
		return 0, 0, errors.Errorf("no geocode match for %q", address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid latitude in geocode response")
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid longitude in geocode response")
	}

	return lat, lng, nil
}
