package domain

import (
	"errors"
	"math"
)

const earthRadiusMeters = 6371000.0

// ErrInvalidCoordinates is returned for latitude/longitude outside their ranges
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude] so the
// document can back a MongoDB 2dsphere index directly.
type GeoPoint struct {
	Type        string     `json:"type" bson:"type"`
	Coordinates [2]float64 `json:"coordinates" bson:"coordinates"`
}

// NewGeoPoint builds a point from latitude and longitude
func NewGeoPoint(lat, lon float64) (GeoPoint, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 || math.IsNaN(lat) || math.IsNaN(lon) {
		return GeoPoint{}, ErrInvalidCoordinates
	}
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lon, lat}}, nil
}

// Lat returns the latitude
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

// Lon returns the longitude
func (p GeoPoint) Lon() float64 { return p.Coordinates[0] }

// DistanceMeters returns the great-circle distance using the haversine formula
func (p GeoPoint) DistanceMeters(other GeoPoint) float64 {
	lat1 := p.Lat() * math.Pi / 180
	lat2 := other.Lat() * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (other.Lon() - p.Lon()) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
