// Package geo provides geohash bucketing, haversine distance and the
// doctor proximity index.
package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const (
	earthRadiusKm = 6371.0
	kmPerDegree   = 111.32

	// MaxPrecision is the finest geohash precision the index buckets by.
	MaxPrecision uint = 7

	// CellPrecision is the precision of fan-out cell topics (about 4.9 km cells).
	CellPrecision uint = 5

	// RequestPrecision is the precision stored on each service request.
	RequestPrecision uint = 9

	maxLatitude = 89.999999
)

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DistanceKm is the great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	deltaLat := toRadians(b.Latitude - a.Latitude)
	deltaLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func Within(a, b Point, radiusKm float64) bool {
	return DistanceKm(a, b) <= radiusKm
}

func Encode(p Point, precision uint) string {
	return geohash.EncodeWithPrecision(clampLat(p.Latitude), normalizeLon(p.Longitude), precision)
}

// PrecisionForRadius returns the finest precision whose cell around center is
// at least radiusKm on its shorter side.
func PrecisionForRadius(center Point, radiusKm float64) uint {
	for p := MaxPrecision; p > 1; p-- {
		h, w := cellSizeKm(center, p)
		if math.Min(h, w) >= radiusKm {
			return p
		}
	}
	return 1
}

// Cover returns the geohash cells at the given precision that intersect the
// bounding box of the circle (center, radiusKm). The result is a superset of
// the cells the circle touches.
func Cover(center Point, radiusKm float64, precision uint) []string {
	if radiusKm < 0 {
		radiusKm = 0
	}
	box := geohash.BoundingBox(Encode(center, precision))
	stepLat := (box.MaxLat - box.MinLat) / 2
	stepLon := (box.MaxLng - box.MinLng) / 2

	dLat := radiusKm / kmPerDegree
	dLon := 180.0
	if c := math.Cos(toRadians(center.Latitude)); c > 1e-6 {
		dLon = math.Min(180, radiusKm/(kmPerDegree*c))
	}

	minLat := clampLat(center.Latitude - dLat)
	maxLat := clampLat(center.Latitude + dLat)
	minLon := center.Longitude - dLon
	maxLon := center.Longitude + dLon

	seen := make(map[string]struct{})
	cells := make([]string, 0, 9)
	for lat := minLat; ; lat += stepLat {
		if lat > maxLat {
			lat = maxLat
		}
		for lon := minLon; ; lon += stepLon {
			if lon > maxLon {
				lon = maxLon
			}
			h := geohash.EncodeWithPrecision(lat, normalizeLon(lon), precision)
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				cells = append(cells, h)
			}
			if lon >= maxLon {
				break
			}
		}
		if lat >= maxLat {
			break
		}
	}
	return cells
}

func cellSizeKm(center Point, precision uint) (heightKm, widthKm float64) {
	box := geohash.BoundingBox(Encode(center, precision))
	heightKm = (box.MaxLat - box.MinLat) * kmPerDegree
	widthKm = (box.MaxLng - box.MinLng) * kmPerDegree * math.Cos(toRadians(center.Latitude))
	return heightKm, widthKm
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}

func clampLat(lat float64) float64 {
	return math.Max(-maxLatitude, math.Min(maxLatitude, lat))
}

func normalizeLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
