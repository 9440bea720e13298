package export

import (
	"cropwise/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FarmsGeoJSON returns one point feature per farm with coordinates. Farms
// without latitude/longitude have no place on a map and are left out.
func FarmsGeoJSON(farms []models.Farm, crops []models.Crop) *geojson.FeatureCollection {
	names := make(map[string]string, len(crops))
	for _, c := range crops {
		names[c.ID] = c.Name
	}
	fc := geojson.NewFeatureCollection()
	for _, f := range farms {
		if !f.HasCoordinates() {
			continue
		}
		feat := geojson.NewFeature(orb.Point{*f.Longitude, *f.Latitude})
		feat.ID = f.ID
		cropNames := make([]string, 0, len(f.Crops))
		for _, id := range f.Crops {
			if n, ok := names[id]; ok {
				cropNames = append(cropNames, n)
			}
		}
		feat.Properties = geojson.Properties{
			"name":        f.Name,
			"location":    f.Location,
			"area":        f.Area,
			"areaAcres":   f.AreaValue,
			"primaryCrop": f.PrimaryCrop,
			"lands":       len(f.Lands),
			"crops":       cropNames,
		}
		fc.Append(feat)
	}
	return fc
}

// LandsGeoJSON lays the farm's parcels out on the 0..100 registration canvas.
func LandsGeoJSON(f models.Farm) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range f.Lands {
		feat := geojson.NewFeature(l.Point())
		feat.ID = l.ID
		feat.Properties = geojson.Properties{
			"name":            l.Name,
			"area":            l.Area,
			"farmId":          f.ID,
			"coordinateSpace": "canvas",
		}
		fc.Append(feat)
	}
	return fc
}
