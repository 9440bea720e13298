package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Farm is the top-level land holding a user registers.
// Crops lists the ids of merged crops whose FarmID points here; the store keeps it in sync.
type Farm struct {
	ID          string         `bson:"_id"                   json:"id"`
	OwnerID     string         `bson:"ownerId"               json:"ownerId"`
	Name        string         `bson:"name"                  json:"name"`
	Location    string         `bson:"location"              json:"location"`
	Area        string         `bson:"area"                  json:"area"`      // "50 acres"
	AreaValue   float64        `bson:"areaValue"             json:"areaValue"` // parsed from Area
	Lands       []LandLocation `bson:"lands"                 json:"lands"`
	Crops       []string       `bson:"crops"                 json:"crops"`
	PrimaryCrop string         `bson:"primaryCrop,omitempty" json:"primaryCrop,omitempty"`
	Latitude    *float64       `bson:"latitude,omitempty"    json:"latitude,omitempty"`
	Longitude   *float64       `bson:"longitude,omitempty"   json:"longitude,omitempty"`
	CreatedAt   time.Time      `bson:"createdAt"             json:"createdAt"`
}

// LandLocation is one marked parcel on the farm canvas. X and Y are percentages (0..100).
type LandLocation struct {
	ID   string  `bson:"id"   json:"id"`
	Name string  `bson:"name" json:"name"`
	Area float64 `bson:"area" json:"area"`
	X    float64 `bson:"x"    json:"x"`
	Y    float64 `bson:"y"    json:"y"`
}

// canvas bounds the normalized parcel coordinates.
var canvas = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}

// Point returns the parcel position on the canvas.
func (l LandLocation) Point() orb.Point { return orb.Point{l.X, l.Y} }

// HasCoordinates reports whether both latitude and longitude are set.
func (f Farm) HasCoordinates() bool { return f.Latitude != nil && f.Longitude != nil }

// HasCrop reports whether id is already listed on the farm.
func (f Farm) HasCrop(id string) bool {
	for _, c := range f.Crops {
		if c == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices with the store.
func (f Farm) Clone() Farm {
	out := f
	out.Lands = append([]LandLocation(nil), f.Lands...)
	out.Crops = append([]string(nil), f.Crops...)
	if f.Latitude != nil {
		v := *f.Latitude
		out.Latitude = &v
	}
	if f.Longitude != nil {
		v := *f.Longitude
		out.Longitude = &v
	}
	return out
}

// FarmInput is the registration form for a farm.
type FarmInput struct {
	Name        string      `json:"name"`
	Location    string      `json:"location"`
	Area        string      `json:"area"`
	PrimaryCrop string      `json:"primaryCrop,omitempty"`
	Lands       []LandInput `json:"lands"`
	Latitude    *float64    `json:"latitude,omitempty"`
	Longitude   *float64    `json:"longitude,omitempty"`
}

// LandInput is one parcel marked on the registration canvas.
type LandInput struct {
	Name string  `json:"name"`
	Area float64 `json:"area"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Validate performs the presence checks the registration form requires.
func (in FarmInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "farm name is required"}
	}
	if strings.TrimSpace(in.Area) == "" {
		return &ValidationError{Field: "area", Message: "farm area is required"}
	}
	if _, err := parseArea(in.Area); err != nil {
		return &ValidationError{Field: "area", Message: "farm area must be a number"}
	}
	if len(in.Lands) == 0 {
		return &ValidationError{Field: "lands", Message: "mark at least one land on the map"}
	}
	for i, l := range in.Lands {
		if strings.TrimSpace(l.Name) == "" {
			return &ValidationError{Field: fmt.Sprintf("lands[%d].name", i), Message: "land name is required"}
		}
		if l.Area <= 0 {
			return &ValidationError{Field: fmt.Sprintf("lands[%d].area", i), Message: "land area must be positive"}
		}
		if !canvas.Contains(orb.Point{l.X, l.Y}) {
			return &ValidationError{Field: fmt.Sprintf("lands[%d]", i), Message: "land position must be within 0..100"}
		}
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return &ValidationError{Field: "latitude", Message: "latitude and longitude must be set together"}
	}
	return nil
}

// NewFarm builds the unsaved Farm for a validated registration form.
// newID supplies parcel ids.
func NewFarm(in FarmInput, ownerID string, newID func() string, now time.Time) (Farm, error) {
	if err := in.Validate(); err != nil {
		return Farm{}, err
	}
	area, _ := parseArea(in.Area)
	f := Farm{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Location:    strings.TrimSpace(in.Location),
		Area:        FormatAcres(area),
		AreaValue:   area,
		Crops:       []string{},
		PrimaryCrop: strings.ToLower(strings.TrimSpace(in.PrimaryCrop)),
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		CreatedAt:   now.UTC(),
	}
	f.Lands = make([]LandLocation, len(in.Lands))
	for i, l := range in.Lands {
		f.Lands[i] = LandLocation{ID: newID(), Name: strings.TrimSpace(l.Name), Area: l.Area, X: l.X, Y: l.Y}
	}
	return f, nil
}

// FormatAcres renders an area the way farm cards show it: "50 acres".
func FormatAcres(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " acres"
}

// parseArea accepts "50", "50.5" or "50 acres".
func parseArea(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSpace(strings.TrimSuffix(s, "acres"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("area must be positive")
	}
	return v, nil
}
