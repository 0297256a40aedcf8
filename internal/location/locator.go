package location

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// FixedLocator always reports the same position.
type FixedLocator struct {
	Lat float64
	Lon float64
}

// ParseFixed parses "lat,lon".
func ParseFixed(s string) (*FixedLocator, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid position %q (want lat,lon)", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return &FixedLocator{Lat: lat, Lon: lon}, nil
}

// Locate implements Locator.
func (l *FixedLocator) Locate(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return Position{Lat: l.Lat, Lon: l.Lon}, nil
}

// DisabledLocator models a denied location permission.
type DisabledLocator struct{}

// Locate implements Locator.
func (DisabledLocator) Locate(ctx context.Context) (Position, error) {
	return Position{}, ErrPermissionDenied
}
