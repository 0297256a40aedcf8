package testutil

import (
	"context"
	"strings"
	"sync"

	"doit/internal/location"
)

// FakePlaces is an in-memory location.Places.
type FakePlaces struct {
	mu sync.Mutex

	// Candidates are returned for every input containing Match.
	Candidates []location.Candidate
	// Geocoded maps an address to its coordinates.
	Geocoded map[string]location.Place
	// Reverse is the address returned by ReverseGeocode.
	Reverse string

	AutocompleteErr error
	GeocodeErr      error
	ReverseErr      error

	Inputs    []string
	Countries []string
}

// Autocomplete implements location.Places.
func (f *FakePlaces) Autocomplete(ctx context.Context, input, country string) ([]location.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inputs = append(f.Inputs, input)
	f.Countries = append(f.Countries, country)
	if f.AutocompleteErr != nil {
		return nil, f.AutocompleteErr
	}
	var out []location.Candidate
	for _, c := range f.Candidates {
		if strings.Contains(strings.ToLower(c.Description), strings.ToLower(input)) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Geocode implements location.Places.
func (f *FakePlaces) Geocode(ctx context.Context, address string) ([]location.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GeocodeErr != nil {
		return nil, f.GeocodeErr
	}
	p, ok := f.Geocoded[address]
	if !ok {
		return nil, nil
	}
	return []location.Place{p}, nil
}

// ReverseGeocode implements location.Places.
func (f *FakePlaces) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReverseErr != nil {
		return "", f.ReverseErr
	}
	return f.Reverse, nil
}

// InputLog returns the inputs sent to Autocomplete.
func (f *FakePlaces) InputLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Inputs...)
}

// FakeLocator is a scripted location.Locator.
type FakeLocator struct {
	mu    sync.Mutex
	Pos   location.Position
	Err   error
	Block bool
	calls int
}

// Locate implements location.Locator. With Block set it waits for ctx.
func (f *FakeLocator) Locate(ctx context.Context) (location.Position, error) {
	f.mu.Lock()
	f.calls++
	block, pos, err := f.Block, f.Pos, f.Err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return location.Position{}, ctx.Err()
	}
	return pos, err
}

// Calls returns how often Locate ran.
func (f *FakeLocator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
