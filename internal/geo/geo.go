// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package geo

import "math"

// EarthRadius is the mean earth radius in meters used for distances.
const EarthRadius = 6371230.0

type Point struct {
	Latitude  float64
	Longitude float64
}

// Geofence is a circle of Radius meters around Center.
type Geofence struct {
	Center Point
	Radius float64
}

// Distance returns the great-circle distance between a and b in meters
// (haversine).
func Distance(a, b Point) float64 {
	phi1 := radians(a.Latitude)
	phi2 := radians(b.Latitude)
	dPhi := radians(b.Latitude - a.Latitude)
	dLambda := radians(b.Longitude - a.Longitude)

	h := math.Pow(math.Sin(dPhi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius * c
}

// Contains reports whether p lies strictly inside the fence.
func (g Geofence) Contains(p Point) bool {
	return Distance(g.Center, p) < g.Radius
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
