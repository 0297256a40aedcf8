// Package googlemaps implements location.Places using the Google Maps
// Places and Geocoding APIs.
package googlemaps

import (
	"context"
	"fmt"
	"net/http"

	"googlemaps.github.io/maps"

	"doit/internal/location"
)

// Client implements location.Places.
type Client struct {
	c      *maps.Client
	region string
}

// Options configures a Client.
type Options struct {
	APIKey     string
	Region     string
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	clientOpts := []maps.ClientOption{maps.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, maps.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, maps.WithHTTPClient(opts.HTTPClient))
	}
	c, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Client{c: c, region: opts.Region}, nil
}

// Autocomplete implements location.Places.
func (c *Client) Autocomplete(ctx context.Context, input, country string) ([]location.Candidate, error) {
	req := &maps.PlaceAutocompleteRequest{Input: input}
	if country != "" {
		req.Components = map[maps.Component][]string{maps.ComponentCountry: {country}}
	}
	resp, err := c.c.PlaceAutocomplete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	out := make([]location.Candidate, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, location.Candidate{
			Description:   p.Description,
			PlaceID:       p.PlaceID,
			MainText:      p.StructuredFormatting.MainText,
			SecondaryText: p.StructuredFormatting.SecondaryText,
		})
	}
	return out, nil
}

// Geocode implements location.Places.
func (c *Client) Geocode(ctx context.Context, address string) ([]location.Place, error) {
	results, err := c.c.Geocode(ctx, &maps.GeocodingRequest{Address: address, Region: c.region})
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	out := make([]location.Place, 0, len(results))
	for _, r := range results {
		lat, lng := r.Geometry.Location.Lat, r.Geometry.Location.Lng
		out = append(out, location.Place{
			Address: r.FormattedAddress,
			Lat:     &lat,
			Lon:     &lng,
			PlaceID: r.PlaceID,
		})
	}
	return out, nil
}

// ReverseGeocode implements location.Places.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	results, err := c.c.ReverseGeocode(ctx, &maps.GeocodingRequest{LatLng: &maps.LatLng{Lat: lat, Lng: lon}})
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].FormattedAddress, nil
}
