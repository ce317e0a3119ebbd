package fraud

import (
	"math"
	"time"
)

// GeoLocation is a resolved geographic position for an IP address.
// Produced by an external GeoIP provider; the engine only consumes it.
type GeoLocation struct {
	Country      string  `json:"country"`
	Region       string  `json:"region,omitempty"`
	City         string  `json:"city,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timezone     string  `json:"timezone,omitempty"`
	ASN          string  `json:"asn,omitempty"`
	Organization string  `json:"organization,omitempty"`
}

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two locations in
// kilometers.
func HaversineKm(a, b GeoLocation) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// LocationSample is a user's last observed location, kept for geo-velocity
// comparison on their next action.
type LocationSample struct {
	Location   GeoLocation `json:"location"`
	IP         string      `json:"ip"`
	ObservedAt time.Time   `json:"observed_at"`
}
