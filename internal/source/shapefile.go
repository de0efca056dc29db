package source

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// ReadShapefile loads a local feature class (ESRI shapefile) into a Frame.
// DBF attributes become typed columns and shapes become the SHAPE column.
func ReadShapefile(path string) (*frame.Frame, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, fld := range fields {
		names[i] = strings.TrimRight(fld.String(), "\x00")
	}

	columns := make([][]any, len(fields)+1)
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		for i, fld := range fields {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			columns[i] = append(columns[i], attributeCell(fld.Fieldtype, raw))
		}
		columns[len(fields)] = append(columns[len(fields)], g)
	}

	if skipped > 0 {
		zap.L().Debug("source: skipped shapefile records without usable geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	f, err := frame.FromColumns(append(names, frame.GeometryColumn), columns)
	if err != nil {
		return nil, err
	}
	if err := f.SetGeometry(frame.GeometryColumn); err != nil {
		return nil, err
	}
	return f, nil
}

func attributeCell(fieldType byte, raw string) any {
	if raw == "" {
		return nil
	}
	switch fieldType {
	case 'N':
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return x
		}
		return raw
	case 'F':
		if x, err := strconv.ParseFloat(raw, 64); err == nil {
			return x
		}
		return raw
	case 'L':
		return raw == "T" || raw == "t" || raw == "Y" || raw == "y"
	default:
		return raw
	}
}

// shapeToGeom converts a go-shp shape to a go-geom geometry with SRID 4326.
// Unsupported or empty shapes return nil.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)

	case *shp.PolyLine:
		return polyLineToMultiLineString(s)

	case *shp.Polygon:
		return polygonToPolygon(s)

	default:
		return nil
	}
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i := int32(0); i < pl.NumParts; i++ {
		coords := partCoords(pl.Parts, pl.Points, i, pl.NumParts)
		ls := geom.NewLineStringFlat(geom.XY, coords)
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("source: skipping malformed polyline part", zap.Int32("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonToPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	poly := geom.NewPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		coords := partCoords(p.Parts, p.Points, i, p.NumParts)
		ring := geom.NewLinearRingFlat(geom.XY, coords)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("source: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	if poly.NumLinearRings() == 0 {
		return nil
	}
	return poly
}

func partCoords(parts []int32, points []shp.Point, i, numParts int32) []float64 {
	start := parts[i]
	end := int32(len(points))
	if i+1 < numParts {
		end = parts[i+1]
	}

	flat := make([]float64, 0, (end-start)*2)
	for j := start; j < end; j++ {
		flat = append(flat, points[j].X, points[j].Y)
	}
	return flat
}
