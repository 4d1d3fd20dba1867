package mesh

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds written to the "kind" property
const (
	FeatureKindLandmark = "landmark"
	FeatureKindScanner  = "scanner"
)

// FrameToGeoJSON projects the global frame onto the XY plane as a GeoJSON
// FeatureCollection. Each landmark and each scanner becomes a Point feature;
// the dropped z coordinate is kept as a property. The collection's bbox
// covers every feature.
func FrameToGeoJSON(frame *GlobalFrame) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	var bound orb.Bound
	first := true
	add := func(p Point3, props geojson.Properties) {
		pt := orb.Point{float64(p.X), float64(p.Y)}
		if first {
			bound = pt.Bound()
			first = false
		} else {
			bound = bound.Extend(pt)
		}
		f := geojson.NewFeature(pt)
		f.Properties = props
		fc.Append(f)
	}

	for _, pos := range frame.Positions {
		add(pos.Position, geojson.Properties{
			"kind":      FeatureKindScanner,
			"scannerId": pos.ScannerID,
			"parentId":  pos.Parent,
			"z":         pos.Position.Z,
		})
	}
	for _, p := range frame.Landmarks {
		add(p, geojson.Properties{
			"kind": FeatureKindLandmark,
			"z":    p.Z,
		})
	}

	if !first {
		fc.BBox = geojson.NewBBox(bound)
	}
	fc.ExtraMembers = geojson.Properties{
		"runId":              frame.RunID,
		"landmarkCount":      frame.LandmarkCount(),
		"maxScannerDistance": frame.MaxScannerDistance(),
	}
	return fc
}

// SaveGeoJSON writes the frame's GeoJSON to path.
func SaveGeoJSON(frame *GlobalFrame, path string) error {
	data, err := FrameToGeoJSON(frame).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing GeoJSON: %w", err)
	}
	return nil
}
