// Package output writes geocoded rows as CSV or GeoJSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/geobatch/internal/geocoding"
)

// Columns names the coordinate columns appended to each row.
type Columns struct {
	Lon string
	Lat string
}

func (c Columns) withDefaults() Columns {
	if c.Lon == "" {
		c.Lon = "lon"
	}
	if c.Lat == "" {
		c.Lat = "lat"
	}
	return c
}

// WriteCSV writes header plus the coordinate columns, then one line per row.
func WriteCSV(w io.Writer, header []string, rows []geocoding.GeocodedRow, cols Columns) error {
	cols = cols.withDefaults()
	cw := csv.NewWriter(w)

	out := make([]string, 0, len(header)+2)
	out = append(out, header...)
	if err := cw.Write(append(out, cols.Lon, cols.Lat)); err != nil {
		return eris.Wrap(err, "output: write csv header")
	}
	for i, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return eris.Wrapf(err, "output: write csv row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "output: flush csv")
}

// WriteGeoJSON writes rows as a FeatureCollection of points. The input
// fields become properties keyed by header, next to confidence and
// classification.
func WriteGeoJSON(w io.Writer, header []string, rows []geocoding.GeocodedRow) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(rows))}
	for _, r := range rows {
		point := geom.NewPointFlat(geom.XY, []float64{r.Coordinate.Longitude, r.Coordinate.Latitude})
		props := make(map[string]any, len(header)+2)
		for i, name := range header {
			if i < len(r.Fields) {
				props[name] = r.Fields[i]
			}
		}
		props["confidence"] = r.Confidence
		props["classification"] = r.Classification
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: point, Properties: props})
	}

	enc := json.NewEncoder(w)
	return eris.Wrap(enc.Encode(&fc), "output: encode geojson")
}

// WriteFile writes rows to path, picking GeoJSON for .geojson/.json and CSV otherwise.
func WriteFile(path string, header []string, rows []geocoding.GeocodedRow, cols Columns) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		err = WriteGeoJSON(f, header, rows)
	default:
		err = WriteCSV(f, header, rows, cols)
	}
	if closeErr := f.Close(); err == nil {
		err = eris.Wrapf(closeErr, "output: close %s", path)
	}
	return err
}
