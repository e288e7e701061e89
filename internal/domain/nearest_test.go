package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordAt(id string, lat, lon float64) domain.Record {
	return domain.Record{ID: id, Lat: lat, Lon: lon, Content: json.RawMessage(`"https://example.com/` + id + `"`)}
}

// northOf returns a record the given number of meters due north of lat/lon.
func northOf(id string, lat, lon, meters float64) domain.Record {
	return recordAt(id, lat+meters/metersPerDegreeLat, lon)
}

func TestNearest_PicksClosestWithinThreshold(t *testing.T) {
	lat, lon := 48.8584, 2.2945
	candidates := []domain.Record{
		northOf("r32", lat, lon, 32),
		northOf("r15", lat, lon, 15),
		northOf("r13", lat, lon, 13),
		northOf("r20", lat, lon, 20),
	}

	m, ok := domain.Nearest(lat, lon, domain.DefaultThresholdMeters, candidates)
	require.True(t, ok)
	assert.Equal(t, "r13", m.ID)
	assert.InDelta(t, 13.0, m.Distance, 0.01)
}

func TestNearest_BeyondThreshold(t *testing.T) {
	lat, lon := 48.8584, 2.2945
	candidates := []domain.Record{
		northOf("r13", lat, lon, 13),
		northOf("r20", lat, lon, 20),
	}

	_, ok := domain.Nearest(lat, lon, 10, candidates)
	assert.False(t, ok)
}

func TestNearest_ThresholdIsInclusive(t *testing.T) {
	r := northOf("r", 10, 10, 25)
	d := domain.Distance(10, 10, r.Lat, r.Lon)

	m, ok := domain.Nearest(10, 10, d, []domain.Record{r})
	require.True(t, ok)
	assert.Equal(t, d, m.Distance)
}

func TestNearest_NoCandidates(t *testing.T) {
	_, ok := domain.Nearest(0, 0, 1e9, nil)
	assert.False(t, ok)
}

func TestNearest_FirstOfEqualDistancesWins(t *testing.T) {
	candidates := []domain.Record{
		recordAt("first", 1.001, 1.001),
		recordAt("second", 1.001, 1.001),
	}

	m, ok := domain.Nearest(1, 1, 500, candidates)
	require.True(t, ok)
	assert.Equal(t, "first", m.ID)
}

func TestNearest_ExactPosition(t *testing.T) {
	m, ok := domain.Nearest(5, 5, 0, []domain.Record{recordAt("here", 5, 5)})
	require.True(t, ok)
	assert.Zero(t, m.Distance)
}

func TestWithinGrid(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"same point", 0, 0, true},
		{"inside on both axes", 0.009, -0.009, true},
		{"edge is inclusive", 0.01, 0.01, true},
		{"outside on latitude", 0.011, 0, false},
		{"outside on longitude", 0, -0.011, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.WithinGrid(recordAt("r", tt.lat, tt.lon), 0, 0))
		})
	}
}

func TestGridBounds(t *testing.T) {
	b := domain.GridBounds(10, 20)
	assert.InDelta(t, 9.99, b.MinLat, 1e-12)
	assert.InDelta(t, 10.01, b.MaxLat, 1e-12)
	assert.InDelta(t, 19.99, b.MinLon, 1e-12)
	assert.InDelta(t, 20.01, b.MaxLon, 1e-12)
}
