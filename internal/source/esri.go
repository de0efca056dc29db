package source

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// esriGeometry is the wire form of an Esri JSON geometry. Exactly one of the
// coordinate fields is populated depending on the geometry type.
type esriGeometry struct {
	X                *float64      `json:"x,omitempty"`
	Y                *float64      `json:"y,omitempty"`
	Points           [][]float64   `json:"points,omitempty"`
	Paths            [][][]float64 `json:"paths,omitempty"`
	Rings            [][][]float64 `json:"rings,omitempty"`
	SpatialReference *esriSR       `json:"spatialReference,omitempty"`
}

type esriSR struct {
	WKID int `json:"wkid,omitempty"`
}

// ParseEsriGeometry decodes an Esri JSON geometry string into a go-geom
// geometry. Single-quoted dicts, as written by spatially enabled dataframe
// CSV exports, are tolerated.
func ParseEsriGeometry(s string) (geom.T, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "null" {
		return nil, nil
	}
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}

	var eg esriGeometry
	if err := json.Unmarshal([]byte(s), &eg); err != nil {
		return nil, eris.Wrap(err, "source: decode esri geometry")
	}
	return eg.toGeom()
}

func (eg *esriGeometry) toGeom() (geom.T, error) {
	srid := 4326
	if eg.SpatialReference != nil && eg.SpatialReference.WKID != 0 {
		srid = eg.SpatialReference.WKID
	}

	switch {
	case eg.X != nil && eg.Y != nil:
		return geom.NewPointFlat(geom.XY, []float64{*eg.X, *eg.Y}).SetSRID(srid), nil

	case eg.Points != nil:
		mp := geom.NewMultiPoint(geom.XY).SetSRID(srid)
		for _, pt := range eg.Points {
			if len(pt) < 2 {
				return nil, eris.New("source: multipoint coordinate has fewer than 2 values")
			}
			if err := mp.Push(geom.NewPointFlat(geom.XY, []float64{pt[0], pt[1]})); err != nil {
				return nil, eris.Wrap(err, "source: build multipoint")
			}
		}
		return mp, nil

	case eg.Paths != nil:
		mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)
		for _, path := range eg.Paths {
			ls := geom.NewLineStringFlat(geom.XY, flattenCoords(path))
			if err := mls.Push(ls); err != nil {
				return nil, eris.Wrap(err, "source: build polyline")
			}
		}
		return mls, nil

	case eg.Rings != nil:
		poly := geom.NewPolygon(geom.XY).SetSRID(srid)
		for _, ring := range eg.Rings {
			lr := geom.NewLinearRingFlat(geom.XY, flattenCoords(ring))
			if err := poly.Push(lr); err != nil {
				return nil, eris.Wrap(err, "source: build polygon")
			}
		}
		return poly, nil
	}

	return nil, eris.New("source: unrecognized esri geometry")
}

// EncodeEsriGeometry renders a go-geom geometry as an Esri JSON string with
// its spatial reference attached.
func EncodeEsriGeometry(g geom.T) (string, error) {
	if g == nil {
		return "", nil
	}

	eg := esriGeometry{}
	srid := g.SRID()
	if srid == 0 {
		srid = 4326
	}
	eg.SpatialReference = &esriSR{WKID: srid}

	switch t := g.(type) {
	case *geom.Point:
		x, y := t.Coords()[0], t.Coords()[1]
		eg.X, eg.Y = &x, &y

	case *geom.MultiPoint:
		for i := 0; i < t.NumPoints(); i++ {
			c := t.Point(i).Coords()
			eg.Points = append(eg.Points, []float64{c[0], c[1]})
		}

	case *geom.LineString:
		eg.Paths = append(eg.Paths, coordPairs(t.Coords()))

	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			eg.Paths = append(eg.Paths, coordPairs(t.LineString(i).Coords()))
		}

	case *geom.Polygon:
		for i := 0; i < t.NumLinearRings(); i++ {
			eg.Rings = append(eg.Rings, coordPairs(t.LinearRing(i).Coords()))
		}

	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			for j := 0; j < p.NumLinearRings(); j++ {
				eg.Rings = append(eg.Rings, coordPairs(p.LinearRing(j).Coords()))
			}
		}

	default:
		return "", eris.Errorf("source: cannot encode geometry type %T", g)
	}

	data, err := json.Marshal(eg)
	if err != nil {
		return "", eris.Wrap(err, "source: encode esri geometry")
	}
	return string(data), nil
}

func flattenCoords(pairs [][]float64) []float64 {
	flat := make([]float64, 0, len(pairs)*2)
	for _, pair := range pairs {
		if len(pair) >= 2 {
			flat = append(flat, pair[0], pair[1])
		}
	}
	return flat
}

func coordPairs(coords []geom.Coord) [][]float64 {
	pairs := make([][]float64, len(coords))
	for i, c := range coords {
		pairs[i] = []float64{c[0], c[1]}
	}
	return pairs
}
