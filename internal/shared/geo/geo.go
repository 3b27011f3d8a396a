package geo

import "math"

const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Nearest is the result of matching a position against a route.
type Nearest struct {
	Index    int
	Distance float64
}

// HaversineKm returns the great-circle distance between two coordinates in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return DistanceMeters(Point{Lat: lat1, Lng: lng1}, Point{Lat: lat2, Lng: lng2}) / 1000
}

// DistanceMeters returns the haversine distance between a and b.
func DistanceMeters(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceToSegment projects p onto the segment a-b in coordinate space and
// measures the distance to the projected point. A zero-length segment falls
// back to the start vertex.
func DistanceToSegment(p, a, b Point) float64 {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng
	lenSq := dLat*dLat + dLng*dLng
	if lenSq == 0 {
		return DistanceMeters(p, a)
	}

	t := ((p.Lat-a.Lat)*dLat + (p.Lng-a.Lng)*dLng) / lenSq
	switch {
	case t < 0:
		return DistanceMeters(p, a)
	case t > 1:
		return DistanceMeters(p, b)
	}
	return DistanceMeters(p, Point{Lat: a.Lat + t*dLat, Lng: a.Lng + t*dLng})
}

// NearestPointOnRoute finds the route index closest to p. Vertices are
// checked first; a segment only wins when it is strictly closer than the best
// match so far, in which case the segment's end index is reported.
func NearestPointOnRoute(p Point, route []Point) Nearest {
	best := Nearest{Index: -1, Distance: math.Inf(1)}
	for i, v := range route {
		if d := DistanceMeters(p, v); d < best.Distance {
			best = Nearest{Index: i, Distance: d}
		}
	}
	for i := 0; i < len(route)-1; i++ {
		if d := DistanceToSegment(p, route[i], route[i+1]); d < best.Distance {
			best = Nearest{Index: i + 1, Distance: d}
		}
	}
	return best
}

// RouteLengthMeters sums the length of every consecutive pair.
func RouteLengthMeters(route []Point) float64 {
	total := 0.0
	for i := 0; i < len(route)-1; i++ {
		total += DistanceMeters(route[i], route[i+1])
	}
	return total
}

// TraveledMeters sums segments whose both ends have been traversed.
func TraveledMeters(route []Point, traversed map[int]struct{}) float64 {
	total := 0.0
	for i := 0; i < len(route)-1; i++ {
		_, a := traversed[i]
		_, b := traversed[i+1]
		if a && b {
			total += DistanceMeters(route[i], route[i+1])
		}
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
