// Package location turns typed text and device position into addresses
// with coordinates.
package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	// MinInputLength is the rune count input must exceed before it is
	// sent to the provider.
	MinInputLength = 2

	// DefaultCountry restricts suggestions.
	DefaultCountry = "de"

	// PositionTimeout bounds a single position request.
	PositionTimeout = 10 * time.Second

	// PositionMaxAge is how long a position is reused.
	PositionMaxAge = 5 * time.Minute
)

// Geolocation failures.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

// Candidate is one autocomplete suggestion.
type Candidate struct {
	Description   string
	PlaceID       string
	MainText      string
	SecondaryText string
}

// Place is a resolved address. Lat and Lon are nil when the address could
// not be geocoded.
type Place struct {
	Address string
	Lat     *float64
	Lon     *float64
	PlaceID string
}

// HasCoordinates reports whether both coordinates are known.
func (p Place) HasCoordinates() bool { return p.Lat != nil && p.Lon != nil }

// Position is a device fix.
type Position struct {
	Lat float64
	Lon float64
	At  time.Time
}

// Places is the mapping provider.
type Places interface {
	Autocomplete(ctx context.Context, input, country string) ([]Candidate, error)
	Geocode(ctx context.Context, address string) ([]Place, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Locator reports the device position.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// Options configures a Resolver.
type Options struct {
	Country string

	// Limit bounds outbound provider requests. Zero means no limit.
	Limit rate.Limit
	Burst int

	Timeout time.Duration
	MaxAge  time.Duration
	Logger  *slog.Logger
}

// Resolver combines a Places provider and a Locator.
type Resolver struct {
	places  Places
	locator Locator
	limiter *rate.Limiter
	country string
	timeout time.Duration
	maxAge  time.Duration
	log     *slog.Logger

	// Now is the clock used for the position cache.
	Now func() time.Time

	mu     sync.Mutex
	cached *Position
}

// NewResolver creates a Resolver. locator may be nil.
func NewResolver(places Places, locator Locator, opts Options) *Resolver {
	r := &Resolver{
		places:  places,
		locator: locator,
		limiter: rate.NewLimiter(rate.Inf, 0),
		country: opts.Country,
		timeout: opts.Timeout,
		maxAge:  opts.MaxAge,
		log:     opts.Logger,
		Now:     time.Now,
	}
	if opts.Limit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(opts.Limit, burst)
	}
	if r.country == "" {
		r.country = DefaultCountry
	}
	if r.timeout <= 0 {
		r.timeout = PositionTimeout
	}
	if r.maxAge <= 0 {
		r.maxAge = PositionMaxAge
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Suggest returns candidates for text. Input of MinInputLength runes or
// fewer returns nothing without contacting the provider.
func (r *Resolver) Suggest(ctx context.Context, text string) ([]Candidate, error) {
	if utf8.RuneCountInString(text) <= MinInputLength {
		return nil, nil
	}
	if r.places == nil {
		return nil, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	candidates, err := r.places.Autocomplete(ctx, text, r.country)
	if err != nil {
		r.log.Debug("autocomplete failed", "error", err)
		return nil, err
	}
	return candidates, nil
}

// Resolve geocodes a chosen candidate. If geocoding yields nothing the
// description is returned without coordinates.
func (r *Resolver) Resolve(ctx context.Context, c Candidate) (Place, error) {
	place := Place{Address: c.Description, PlaceID: c.PlaceID}
	if r.places == nil {
		return place, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return place, err
	}
	results, err := r.places.Geocode(ctx, c.Description)
	if err != nil {
		return place, err
	}
	if len(results) == 0 {
		return place, nil
	}
	res := results[0]
	place.Lat, place.Lon = res.Lat, res.Lon
	if place.PlaceID == "" {
		place.PlaceID = res.PlaceID
	}
	return place, nil
}

// CurrentPosition resolves the device position to an address. When no
// address is found the coordinates themselves are used as text.
func (r *Resolver) CurrentPosition(ctx context.Context) (Place, error) {
	pos, err := r.position(ctx)
	if err != nil {
		return Place{}, err
	}
	lat, lon := pos.Lat, pos.Lon
	place := Place{Address: fmt.Sprintf("%.6f, %.6f", lat, lon), Lat: &lat, Lon: &lon}
	if r.places == nil {
		return place, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return place, nil
	}
	addr, err := r.places.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		r.log.Debug("reverse geocode failed", "error", err)
		return place, nil
	}
	if addr != "" {
		place.Address = addr
	}
	return place, nil
}

func (r *Resolver) position(ctx context.Context) (Position, error) {
	if r.locator == nil {
		return Position{}, ErrPositionUnavailable
	}

	r.mu.Lock()
	if r.cached != nil && r.Now().Sub(r.cached.At) <= r.maxAge {
		pos := *r.cached
		r.mu.Unlock()
		return pos, nil
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pos, err := r.locator.Locate(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrPositionUnavailable), errors.Is(err, ErrTimeout):
			return Position{}, err
		case errors.Is(err, context.DeadlineExceeded):
			return Position{}, ErrTimeout
		}
		return Position{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	if pos.At.IsZero() {
		pos.At = r.Now()
	}

	r.mu.Lock()
	r.cached = &pos
	r.mu.Unlock()
	return pos, nil
}

// Message returns the user-facing text for a geolocation error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "location access denied; allow location access or type an address"
	case errors.Is(err, ErrPositionUnavailable):
		return "location information is unavailable"
	case errors.Is(err, ErrTimeout):
		return "location request timed out"
	default:
		return "could not determine location"
	}
}
