package enrich

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// NormalizeOptions controls metric normalization.
type NormalizeOptions struct {
	// FillValue replaces null normalized values. Nil leaves them unfilled.
	FillValue any
	// DropOriginal removes the gross columns after normalizing.
	DropOriginal bool
}

// AddNormalizedColumns divides every suffix-numbered metric column prefixed
// with factorRoot by a per-origin demographic denominator, typically total
// households or total population. The denominator series is joined from the
// normalize table on origin_id; normalized columns take outName in place of
// factorRoot in their names. A numerator over a zero denominator yields Inf,
// which is forced to zero.
func AddNormalizedColumns(closest, normalize *frame.Frame, factorRoot, normIDFld, normFld, outName string, opts NormalizeOptions) (*frame.Frame, error) {
	if !closest.HasColumn(originIDColumn) {
		return nil, eris.New("enrich: closest table has no origin_id column")
	}

	lookup, err := buildLookup(normalize, []string{normIDFld}, normFld)
	if err != nil {
		return nil, err
	}

	origins, err := closest.Col(originIDColumn)
	if err != nil {
		return nil, err
	}

	// Join the denominator series onto the closest table, then find the
	// gross columns to normalize.
	denoms := make([]any, len(origins))
	for i := range origins {
		if origins[i] == nil {
			continue // null origin keys never match
		}
		denoms[i] = lookup[frame.Key(origins[i])]
	}

	result := closest.Copy()
	grossFlds := prefixedColumns(result, factorRoot)
	if len(grossFlds) == 0 {
		return nil, eris.Errorf("enrich: closest table has no columns prefixed %q", factorRoot)
	}

	for _, grossFld := range grossFlds {
		normalizedFld := strings.ReplaceAll(grossFld, factorRoot, outName)

		gross, err := result.Col(grossFld)
		if err != nil {
			return nil, err
		}

		values := make([]any, len(gross))
		for i := range gross {
			values[i] = divideCell(gross[i], denoms[i])
		}

		if err := result.AddColumn(normalizedFld, values); err != nil {
			return nil, err
		}
		if opts.FillValue != nil {
			if err := result.Fill(normalizedFld, opts.FillValue); err != nil {
				return nil, err
			}
		}

		// A value over a zero denominator is inf; we need zero.
		if err := sweepInf(result, normalizedFld); err != nil {
			return nil, err
		}
	}

	if opts.DropOriginal {
		result.Drop(grossFlds...)
	}

	zap.L().Debug("enrich: normalized metric columns",
		zap.String("factor_root", factorRoot),
		zap.String("output", outName),
		zap.Int("columns", len(grossFlds)),
	)
	return result, nil
}

func prefixedColumns(f *frame.Frame, prefix string) []string {
	var cols []string
	for _, col := range f.Columns() {
		if strings.HasPrefix(col, prefix) {
			cols = append(cols, col)
		}
	}
	return cols
}

// divideCell divides two cells, returning nil when either side is null or
// non-numeric, or when the quotient is NaN.
func divideCell(numerator, denominator any) any {
	num, ok := frame.Float(numerator)
	if !ok {
		return nil
	}
	den, ok := frame.Float(denominator)
	if !ok {
		return nil
	}

	q := num / den
	if math.IsNaN(q) {
		return nil
	}
	return q
}

func sweepInf(f *frame.Frame, name string) error {
	vals, err := f.Col(name)
	if err != nil {
		return err
	}
	for i, v := range vals {
		if x, ok := v.(float64); ok && math.IsInf(x, 0) {
			vals[i] = float64(0)
		}
	}
	return nil
}
