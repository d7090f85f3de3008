// Package system provides the wall clock, pinned to the site's time zone.
package system

import (
	"fmt"
	"time"
)

// DefaultZone is the zone the site renders its relative dates in.
const DefaultZone = "Europe/Budapest"

// Clock implements crawler.Clock. Relative dates such as "tegnap" are
// resolved against Now, so it must report the site's local day.
type Clock struct {
	loc *time.Location
}

// New returns a Clock in loc; nil selects UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// NewInZone loads the named IANA zone; an empty name selects DefaultZone.
func NewInZone(name string) (*Clock, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's location.
func (c *Clock) Location() *time.Location {
	return c.loc
}
