package model

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// AverageSpeedKmh is the assumed travel speed used for ETA estimates.
const AverageSpeedKmh = 40.0

// HaversineKm returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(radians(lat1))*math.Cos(radians(lat2))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// TravelTime estimates the door-to-door travel duration for the given
// distance at AverageSpeedKmh.
func TravelTime(distanceKm float64) time.Duration {
	if distanceKm <= 0 {
		return 0
	}
	hours := distanceKm / AverageSpeedKmh
	return time.Duration(hours * float64(time.Hour))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
