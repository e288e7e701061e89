// Package domain models content anchored to a geographic coordinate.
//
// # Records
//
// A [Record] pairs a latitude/longitude with an opaque JSON content value
// (typically a URL string, sometimes a structured payload). Records are
// append-only: once saved they are never mutated or deleted. The creation
// time and ID are assigned by the service, never by the caller.
//
// # Resolution
//
// Resolving a coordinate happens in two stages:
//
//	1. Grid pre-filter: a candidate qualifies only when both its latitude and
//	   longitude lie within [GridMarginDegrees] of the query point
//	   (inclusive). Storage backends apply this natively as a range query.
//	2. Exact ranking: the remaining candidates are ranked by haversine
//	   distance ([Distance]) and the closest one wins if it is within the
//	   caller's threshold in meters. See [Nearest].
//
// The pre-filter bounds the largest threshold that can be served correctly:
// 0.01 degrees is roughly 1.1 km of latitude, and shrinks in longitude
// toward the poles. A record just outside the grid is never returned, even
// when the threshold would cover it.
package domain
