// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	// one degree along a great circle is 2*pi*R/360
	degree := EarthRadius * math.Pi / 180

	tests := []struct {
		name     string
		a, b     Point
		expected float64
		delta    float64
	}{
		{"SamePoint", Point{52.52, 13.405}, Point{52.52, 13.405}, 0, 1e-6},
		{"OneDegreeLatitude", Point{0, 0}, Point{1, 0}, degree, 1e-6},
		{"OneDegreeLongitudeAtEquator", Point{0, 0}, Point{0, 1}, degree, 1e-6},
		{"SydneyToMelbourne", Point{-33.8688, 151.2093}, Point{-37.8136, 144.9631}, 713_000, 2_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Distance(tt.a, tt.b), tt.delta)
			assert.InDelta(t, tt.expected, Distance(tt.b, tt.a), tt.delta)
		})
	}

	assert.InDelta(t, 111198.94, degree, 0.01)
}

func TestGeofenceContains(t *testing.T) {
	home := Geofence{Center: Point{-33.8688, 151.2093}, Radius: 10}

	// roughly 5.6m north
	assert.True(t, home.Contains(Point{-33.86875, 151.2093}))
	// roughly 111m north
	assert.False(t, home.Contains(Point{-33.8678, 151.2093}))
	// the boundary itself is outside
	assert.False(t, Geofence{Center: Point{0, 0}, Radius: 0}.Contains(Point{0, 0}))
}
