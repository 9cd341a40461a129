package utils

import (
	"math"
)

const EarthRadiusKM = 6371.0

// CalculateDistance returns the straight-line (great-circle) distance in
// kilometers between two coordinates. This is a deliberate stand-in for a
// routing backend; trip statistics sum it over the ordered sample trail.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineDistance(lat1, lon1, lat2, lon2)
}

func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// TrailDistance sums consecutive pairwise distances over an ordered trail of
// (lat, lng) points, rounded to two decimals.
func TrailDistance(points [][2]float64) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += CalculateDistance(points[i-1][0], points[i-1][1], points[i][0], points[i][1])
	}
	return math.Round(total*100) / 100
}
