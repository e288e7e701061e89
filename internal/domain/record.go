package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is a piece of content anchored to a coordinate.
type Record struct {
	ID        string          `json:"id"`
	Lat       float64         `json:"lat"`
	Lon       float64         `json:"lon"`
	Content   json.RawMessage `json:"content"`
	Place     string          `json:"place,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Match is a Record returned by a resolve query, together with its distance
// in meters from the query point. Distance is never persisted.
type Match struct {
	Record
	Distance float64 `json:"distance"`
}

// NewRecord builds a record with a fresh ID and the current time.
func NewRecord(lat, lon float64, content json.RawMessage) Record {
	return Record{
		ID:        uuid.NewString(),
		Lat:       lat,
		Lon:       lon,
		Content:   content,
		CreatedAt: clock.Now().UTC(),
	}
}

// ContentURL returns the content as a string when it is a JSON string.
func (r Record) ContentURL() (string, bool) {
	return StringContent(r.Content)
}

// StringContent decodes raw as a JSON string. It reports false for any other
// JSON type, including null.
func StringContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
