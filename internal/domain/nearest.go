package domain

import "math"

// GridMarginDegrees is the half-width of the square pre-filter window,
// applied independently to latitude and longitude.
const GridMarginDegrees = 0.01

// DefaultThresholdMeters is used when a resolve request carries no threshold.
const DefaultThresholdMeters = 50.0

// Bounds is the inclusive pre-filter window around a query point.
type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// GridBounds returns the pre-filter window centered on lat/lon.
func GridBounds(lat, lon float64) Bounds {
	return Bounds{
		MinLat: lat - GridMarginDegrees,
		MaxLat: lat + GridMarginDegrees,
		MinLon: lon - GridMarginDegrees,
		MaxLon: lon + GridMarginDegrees,
	}
}

// WithinGrid reports whether r lies inside the pre-filter window of lat/lon.
func WithinGrid(r Record, lat, lon float64) bool {
	return math.Abs(r.Lat-lat) <= GridMarginDegrees && math.Abs(r.Lon-lon) <= GridMarginDegrees
}

// Nearest picks the candidate closest to lat/lon. The first candidate that
// reaches the minimum distance wins. It reports false when there are no
// candidates or the closest one is farther than thresholdMeters.
//
// Candidates are expected to be pre-filtered by the caller.
func Nearest(lat, lon, thresholdMeters float64, candidates []Record) (Match, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i := range candidates {
		d := Distance(lat, lon, candidates[i].Lat, candidates[i].Lon)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 || bestDist > thresholdMeters {
		return Match{}, false
	}
	return Match{Record: candidates[best], Distance: bestDist}, true
}
