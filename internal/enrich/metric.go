// Package enrich joins and normalizes metrics onto origin-to-multiple-
// destination tables. These tables follow the standardized wide schema with
// one row per origin and suffix-numbered destination columns
// (destination_id_01, destination_id_02, ...) produced by closest analysis.
package enrich

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

const (
	originIDColumn      = "origin_id"
	destinationIDColumn = "destination_id"
	destinationIDPrefix = "destination_id_"
	joinKeySeparator    = "\x1f"
)

// JoinOptions controls metric joins.
type JoinOptions struct {
	// FillValue replaces nulls left by join misses. Nil leaves them unfilled.
	FillValue any
	// GetDummies explodes categorical output columns into indicator columns.
	// Only honored by AddMetricByDest.
	GetDummies bool
}

// DestinationColumns returns the parent's destination slot columns in order.
func DestinationColumns(f *frame.Frame) []string {
	var slots []string
	for _, col := range f.Columns() {
		if strings.HasPrefix(col, destinationIDPrefix) {
			slots = append(slots, col)
		}
	}
	return slots
}

// slotSuffix extracts the numbered suffix from a destination slot column,
// e.g. "_07" from "destination_id_07".
func slotSuffix(col string) string {
	runes := []rune(col)
	if len(runes) < 3 {
		return col
	}
	return string(runes[len(runes)-3:])
}

// AddMetricByOriginDest joins a metric keyed by (origin_id, destination_id)
// onto each destination slot of the parent table, producing one suffix-
// numbered output column per slot.
func AddMetricByOriginDest(parent, join *frame.Frame, metricFld string, opts JoinOptions) (*frame.Frame, error) {
	slots := DestinationColumns(parent)
	if len(slots) == 0 {
		return nil, eris.New("enrich: parent table has no destination_id_ columns")
	}
	if !parent.HasColumn(originIDColumn) {
		return nil, eris.New("enrich: parent table has no origin_id column")
	}

	lookup, err := buildLookup(join, []string{originIDColumn, destinationIDColumn}, metricFld)
	if err != nil {
		return nil, err
	}

	origins, err := parent.Col(originIDColumn)
	if err != nil {
		return nil, err
	}

	combined := parent.Copy()
	for _, slot := range slots {
		outFld := metricFld + slotSuffix(slot)

		dests, err := combined.Col(slot)
		if err != nil {
			return nil, err
		}

		values := make([]any, len(origins))
		for i := range origins {
			if origins[i] == nil || dests[i] == nil {
				continue // null keys never match
			}
			key := frame.Key(origins[i]) + joinKeySeparator + frame.Key(dests[i])
			values[i] = lookup[key]
		}

		if err := addJoined(combined, outFld, values, opts.FillValue); err != nil {
			return nil, err
		}
	}

	zap.L().Debug("enrich: joined metric by origin and destination",
		zap.String("metric", metricFld),
		zap.Int("slots", len(slots)),
	)
	return combined, nil
}

// AddMetricByDest joins a metric keyed by destination alone onto each
// destination slot of the parent table. With GetDummies set, every output
// column is exploded into per-category indicator columns and all column
// names are cleaned at the end.
func AddMetricByDest(parent, join *frame.Frame, joinIDFld, metricFld string, opts JoinOptions) (*frame.Frame, error) {
	slots := DestinationColumns(parent)
	if len(slots) == 0 {
		return nil, eris.New("enrich: parent table has no destination_id_ columns")
	}

	lookup, err := buildLookup(join, []string{joinIDFld}, metricFld)
	if err != nil {
		return nil, err
	}

	combined := parent.Copy()
	for _, slot := range slots {
		outFld := metricFld + slotSuffix(slot)

		dests, err := combined.Col(slot)
		if err != nil {
			return nil, err
		}

		values := make([]any, len(dests))
		for i := range dests {
			if dests[i] == nil {
				continue
			}
			values[i] = lookup[frame.Key(dests[i])]
		}

		if err := addJoined(combined, outFld, values, opts.FillValue); err != nil {
			return nil, err
		}

		if opts.GetDummies {
			if err := explodeDummies(combined, outFld); err != nil {
				return nil, err
			}
		}
	}

	if opts.GetDummies {
		if err := combined.SetColumnNames(frame.CleanColumns(combined.Columns())); err != nil {
			return nil, err
		}
	}

	zap.L().Debug("enrich: joined metric by destination",
		zap.String("metric", metricFld),
		zap.Int("slots", len(slots)),
		zap.Bool("dummies", opts.GetDummies),
	)
	return combined, nil
}

// buildLookup indexes the join frame's metric by the canonicalized key
// columns. The first row wins on duplicate keys.
func buildLookup(join *frame.Frame, keyFlds []string, metricFld string) (map[string]any, error) {
	keys := make([][]any, len(keyFlds))
	for i, fld := range keyFlds {
		vals, err := join.Col(fld)
		if err != nil {
			return nil, eris.Wrapf(err, "enrich: join table missing key column %q", fld)
		}
		keys[i] = vals
	}
	metric, err := join.Col(metricFld)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: join table missing metric column %q", metricFld)
	}

	lookup := make(map[string]any, join.NumRows())
	for row := 0; row < join.NumRows(); row++ {
		parts := make([]string, len(keys))
		null := false
		for i := range keys {
			// only nil is a null key; an empty string is a legitimate value
			if keys[i][row] == nil {
				null = true
				break
			}
			parts[i] = frame.Key(keys[i][row])
		}
		if null {
			continue
		}
		key := strings.Join(parts, joinKeySeparator)
		if _, exists := lookup[key]; !exists {
			lookup[key] = metric[row]
		}
	}
	return lookup, nil
}

func addJoined(f *frame.Frame, name string, values []any, fillValue any) error {
	if err := f.AddColumn(name, values); err != nil {
		return err
	}
	if fillValue != nil {
		return f.Fill(name, fillValue)
	}
	return nil
}

// explodeDummies replaces a categorical column with one indicator column per
// category. Nulls contribute no category and zero out every indicator.
func explodeDummies(f *frame.Frame, name string) error {
	vals, err := f.Col(name)
	if err != nil {
		return err
	}

	categories := make(map[string]bool)
	for _, v := range vals {
		if v != nil {
			categories[frame.Key(v)] = true
		}
	}
	ordered := make([]string, 0, len(categories))
	for cat := range categories {
		ordered = append(ordered, cat)
	}
	sort.Strings(ordered)

	f.Drop(name)
	for _, cat := range ordered {
		indicator := make([]any, len(vals))
		for i, v := range vals {
			if v != nil && frame.Key(v) == cat {
				indicator[i] = int64(1)
			} else {
				indicator[i] = int64(0)
			}
		}
		if err := f.AddColumn(name+"_"+cat, indicator); err != nil {
			return err
		}
	}
	return nil
}
