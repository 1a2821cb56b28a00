package geo

import (
	"errors"
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by every distance helper.
const EarthRadiusKm = 6371.0

// kmPerDegreeLat approximates the length of one degree of latitude.
const kmPerDegreeLat = 111.0

var ErrInvalidPoint = errors.New("invalid coordinates")

// Point is a single GPS sample or location. Only Lat/Lng are required.
type Point struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	HeadingDeg *float64  `json:"heading_deg,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return ErrInvalidPoint
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidPoint
	}
	if p.AccuracyM != nil && *p.AccuracyM < 0 {
		return ErrInvalidPoint
	}
	if p.SpeedKmh != nil && *p.SpeedKmh < 0 {
		return ErrInvalidPoint
	}
	return nil
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	lat1Rad := toRad(lat1)
	lat2Rad := toRad(lat2)
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Distance is HaversineKm over two points.
func Distance(a, b Point) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// BBox is a rectangular prefilter. It is never a distance test on its own.
// A box with MinLng > MaxLng crosses the antimeridian and covers
// [MinLng, 180] plus [-180, MaxLng].
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// BoundingBox returns the box around center that contains every point within
// radiusKm. The longitude span is widened by 1/cos(lat) and wraps across the
// antimeridian instead of being cut at ±180.
func BoundingBox(center Point, radiusKm float64) BBox {
	if radiusKm < 0 {
		radiusKm = 0
	}
	latDelta := radiusKm / kmPerDegreeLat
	lngDelta := lngDeltaAt(center.Lat, radiusKm)

	b := BBox{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
	}
	b.MinLng, b.MaxLng = lngRange(center.Lng-lngDelta, center.Lng+lngDelta)
	return b
}

func (b BBox) CrossesAntimeridian() bool {
	return b.MinLng > b.MaxLng
}

func (b BBox) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.CrossesAntimeridian() {
		return p.Lng >= b.MinLng || p.Lng <= b.MaxLng
	}
	return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Expand grows the box by marginKm on every side. The longitude margin is
// taken at the latitude farthest from the equator.
func (b BBox) Expand(marginKm float64) BBox {
	if marginKm < 0 {
		marginKm = 0
	}
	latDelta := marginKm / kmPerDegreeLat
	out := BBox{
		MinLat: math.Max(-90, b.MinLat-latDelta),
		MaxLat: math.Min(90, b.MaxLat+latDelta),
	}
	lngDelta := lngDeltaAt(math.Max(math.Abs(out.MinLat), math.Abs(out.MaxLat)), marginKm)
	maxLng := b.MaxLng
	if b.CrossesAntimeridian() {
		maxLng += 360
	}
	out.MinLng, out.MaxLng = lngRange(b.MinLng-lngDelta, maxLng+lngDelta)
	return out
}

// lngDeltaAt is the longitude half-width of radiusKm at lat, capped at 180.
func lngDeltaAt(lat, radiusKm float64) float64 {
	cosLat := math.Cos(toRad(lat))
	if cosLat <= 1e-9 {
		return 180
	}
	return math.Min(180, radiusKm/(kmPerDegreeLat*cosLat))
}

// lngRange folds an unwrapped span lo <= hi back into [-180, 180].
func lngRange(lo, hi float64) (float64, float64) {
	if hi-lo >= 360 {
		return -180, 180
	}
	return wrapLng(lo), wrapLng(hi)
}

func wrapLng(lng float64) float64 {
	for lng < -180 {
		lng += 360
	}
	for lng > 180 {
		lng -= 360
	}
	return lng
}

// RouteBounds returns the smallest box containing every point of the route.
func RouteBounds(route []Point) BBox {
	if len(route) == 0 {
		return BBox{}
	}
	b := BBox{MinLat: route[0].Lat, MaxLat: route[0].Lat, MinLng: route[0].Lng, MaxLng: route[0].Lng}
	for _, p := range route[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b
}

// PointToSegmentKm returns the distance from p to the closest point of the
// segment a-b. The projection is done on a local equirectangular plane and the
// final distance is measured with haversine.
func PointToSegmentKm(p, a, b Point) float64 {
	cosLat := math.Cos(toRad(a.Lat))
	ax, ay := 0.0, 0.0
	bx, by := toRad(b.Lng-a.Lng)*cosLat, toRad(b.Lat-a.Lat)
	px, py := toRad(p.Lng-a.Lng)*cosLat, toRad(p.Lat-a.Lat)

	segLen2 := (bx-ax)*(bx-ax) + (by-ay)*(by-ay)
	if segLen2 < 1e-18 {
		return Distance(p, a)
	}

	u := ((px-ax)*(bx-ax) + (py-ay)*(by-ay)) / segLen2
	switch {
	case u <= 0:
		return Distance(p, a)
	case u >= 1:
		return Distance(p, b)
	}

	closest := Point{
		Lat: a.Lat + u*(b.Lat-a.Lat),
		Lng: a.Lng + u*(b.Lng-a.Lng),
	}
	return Distance(p, closest)
}

// DistanceToRouteKm is the minimum PointToSegmentKm over consecutive route
// points. A single-point route degrades to a point distance.
func DistanceToRouteKm(p Point, route []Point) float64 {
	switch len(route) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(p, route[0])
	}
	best := math.Inf(1)
	for i := 0; i < len(route)-1; i++ {
		if d := PointToSegmentKm(p, route[i], route[i+1]); d < best {
			best = d
		}
	}
	return best
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
