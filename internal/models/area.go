// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package models

import (
	"strings"
	"time"

	"github.com/tomtom215/trailguard/internal/geo"
)

// ReferenceArea is the planned center of an active itinerary. A new
// itinerary replaces the area; an existing area is never edited.
type ReferenceArea struct {
	ID     string         `json:"id"`
	Label  string         `json:"city"`
	Center geo.Coordinate `json:"center"`

	// RadiusMeters overrides the monitor threshold when positive.
	RadiusMeters float64   `json:"radius_m,omitempty"`
	CreatedAt    time.Time `json:"created"`
}

// DefaultCity is used when an itinerary names a city we have no center for.
const DefaultCity = "Delhi"

var cityCenters = map[string]geo.Coordinate{
	"delhi":     {Lat: 28.6139, Lng: 77.2090},
	"mumbai":    {Lat: 19.0760, Lng: 72.8777},
	"bangalore": {Lat: 12.9716, Lng: 77.5946},
	"chennai":   {Lat: 13.0827, Lng: 80.2707},
	"kolkata":   {Lat: 22.5726, Lng: 88.3639},
	"hyderabad": {Lat: 17.3850, Lng: 78.4867},
	"pune":      {Lat: 18.5204, Lng: 73.8567},
	"ahmedabad": {Lat: 23.0225, Lng: 72.5714},
	"jaipur":    {Lat: 26.9124, Lng: 75.7873},
	"lucknow":   {Lat: 26.8467, Lng: 80.9462},
	"kanpur":    {Lat: 26.4499, Lng: 80.3319},
	"nagpur":    {Lat: 21.1458, Lng: 79.0882},
	"agra":      {Lat: 27.1767, Lng: 78.0081},
	"varanasi":  {Lat: 25.3176, Lng: 82.9739},
	"goa":       {Lat: 15.2993, Lng: 74.1240},
}

// CityCenter returns the known center of city and whether it was found.
// Unknown cities resolve to the DefaultCity center.
func CityCenter(city string) (geo.Coordinate, bool) {
	c, ok := cityCenters[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return cityCenters[strings.ToLower(DefaultCity)], false
	}
	return c, true
}
