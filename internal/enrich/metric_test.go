package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// newClosestFrame builds a two-slot origin-to-destination table.
func newClosestFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.FromColumns(
		[]string{"origin_id", "destination_id_01", "destination_id_02"},
		[][]any{
			{int64(100), int64(200), int64(300)},
			{"d1", "d2", "d1"},
			{"d2", "d1", "d3"},
		},
	)
	require.NoError(t, err)
	return f
}

func col(t *testing.T, f *frame.Frame, name string) []any {
	t.Helper()
	vals, err := f.Col(name)
	require.NoError(t, err)
	return vals
}

func TestDestinationColumns(t *testing.T) {
	f := newClosestFrame(t)
	assert.Equal(t, []string{"destination_id_01", "destination_id_02"}, DestinationColumns(f))
}

func TestSlotSuffix(t *testing.T) {
	assert.Equal(t, "_01", slotSuffix("destination_id_01"))
	assert.Equal(t, "_10", slotSuffix("destination_id_10"))
}

func TestAddMetricByOriginDest(t *testing.T) {
	parent := newClosestFrame(t)
	join, err := frame.FromColumns(
		[]string{"origin_id", "destination_id", "drive_time"},
		[][]any{
			{int64(100), int64(100), int64(200), int64(300)},
			{"d1", "d2", "d2", "d1"},
			{5.0, 12.0, 7.5, 3.0},
		},
	)
	require.NoError(t, err)

	combined, err := AddMetricByOriginDest(parent, join, "drive_time", JoinOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"origin_id", "destination_id_01", "destination_id_02",
		"drive_time_01", "drive_time_02",
	}, combined.Columns())
	assert.Equal(t, []any{5.0, 7.5, 3.0}, col(t, combined, "drive_time_01"))
	// origin 200/d1 and 300/d3 have no metric row
	assert.Equal(t, []any{12.0, nil, nil}, col(t, combined, "drive_time_02"))

	// parent unchanged
	assert.Equal(t, []string{"origin_id", "destination_id_01", "destination_id_02"}, parent.Columns())
}

func TestAddMetricByOriginDest_FillValue(t *testing.T) {
	parent := newClosestFrame(t)
	join, err := frame.FromColumns(
		[]string{"origin_id", "destination_id", "visits"},
		[][]any{
			{int64(100)},
			{"d1"},
			{int64(40)},
		},
	)
	require.NoError(t, err)

	combined, err := AddMetricByOriginDest(parent, join, "visits", JoinOptions{FillValue: int64(0)})
	require.NoError(t, err)

	assert.Equal(t, []any{int64(40), int64(0), int64(0)}, col(t, combined, "visits_01"))
	assert.Equal(t, []any{int64(0), int64(0), int64(0)}, col(t, combined, "visits_02"))
}

func TestAddMetricByOriginDest_KeyCoercion(t *testing.T) {
	// join table ids arrive as floats, parent holds ints and strings
	parent := newClosestFrame(t)
	join, err := frame.FromColumns(
		[]string{"origin_id", "destination_id", "score"},
		[][]any{
			{100.0},
			{"d1"},
			{0.9},
		},
	)
	require.NoError(t, err)

	combined, err := AddMetricByOriginDest(parent, join, "score", JoinOptions{})
	require.NoError(t, err)
	assert.Equal(t, []any{0.9, nil, nil}, col(t, combined, "score_01"))
}

func TestAddMetricByOriginDest_MissingColumns(t *testing.T) {
	parent := newClosestFrame(t)

	noKeys, err := frame.FromColumns([]string{"x"}, [][]any{{int64(1)}})
	require.NoError(t, err)
	_, err = AddMetricByOriginDest(parent, noKeys, "metric", JoinOptions{})
	require.Error(t, err)

	noSlots, err := frame.FromColumns([]string{"origin_id"}, [][]any{{int64(1)}})
	require.NoError(t, err)
	_, err = AddMetricByOriginDest(noSlots, noKeys, "metric", JoinOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination_id_")
}

func TestAddMetricByDest(t *testing.T) {
	parent := newClosestFrame(t)
	join, err := frame.FromColumns(
		[]string{"dest_id", "sales"},
		[][]any{
			{"d1", "d2", "d3"},
			{1000.0, 2000.0, 3000.0},
		},
	)
	require.NoError(t, err)

	combined, err := AddMetricByDest(parent, join, "dest_id", "sales", JoinOptions{})
	require.NoError(t, err)

	assert.Equal(t, []any{1000.0, 2000.0, 1000.0}, col(t, combined, "sales_01"))
	assert.Equal(t, []any{2000.0, 1000.0, 3000.0}, col(t, combined, "sales_02"))
}

func TestAddMetricByDest_Dummies(t *testing.T) {
	parent := newClosestFrame(t)
	join, err := frame.FromColumns(
		[]string{"dest_id", "store type"},
		[][]any{
			{"d1", "d2", "d3"},
			{"big box", "corner", nil},
		},
	)
	require.NoError(t, err)

	combined, err := AddMetricByDest(parent, join, "dest_id", "store type", JoinOptions{GetDummies: true})
	require.NoError(t, err)

	// indicator columns per slot, names cleaned at the end
	cols := combined.Columns()
	assert.Contains(t, cols, "store_type_01_big_box")
	assert.Contains(t, cols, "store_type_01_corner")
	assert.Contains(t, cols, "store_type_02_big_box")
	assert.NotContains(t, cols, "store type_01")

	assert.Equal(t, []any{int64(1), int64(0), int64(1)}, col(t, combined, "store_type_01_big_box"))
	assert.Equal(t, []any{int64(0), int64(1), int64(0)}, col(t, combined, "store_type_01_corner"))
	// slot 2 row 3 points at d3 whose category is null: zeros across the board
	assert.Equal(t, []any{int64(1), int64(0), int64(0)}, col(t, combined, "store_type_02_corner"))
	assert.Equal(t, []any{int64(0), int64(1), int64(0)}, col(t, combined, "store_type_02_big_box"))
}

func TestAddMetricByDest_EmptyStringKey(t *testing.T) {
	parent, err := frame.FromColumns(
		[]string{"origin_id", "destination_id_01"},
		[][]any{
			{int64(100), int64(200), int64(300)},
			{"", "d1", nil},
		},
	)
	require.NoError(t, err)

	join, err := frame.FromColumns(
		[]string{"dest_id", "sales"},
		[][]any{
			{"", "d1"},
			{500.0, 1000.0},
		},
	)
	require.NoError(t, err)

	combined, err := AddMetricByDest(parent, join, "dest_id", "sales", JoinOptions{})
	require.NoError(t, err)

	// an empty-string destination joins like any other value; only the
	// null slot misses
	assert.Equal(t, []any{500.0, 1000.0, nil}, col(t, combined, "sales_01"))
}

func TestBuildLookup_NullAndDuplicateKeys(t *testing.T) {
	join, err := frame.FromColumns(
		[]string{"id", "metric"},
		[][]any{
			{"a", nil, "a"},
			{int64(1), int64(2), int64(3)},
		},
	)
	require.NoError(t, err)

	lookup, err := buildLookup(join, []string{"id"}, "metric")
	require.NoError(t, err)

	// null keys are skipped, first row wins on duplicates
	assert.Len(t, lookup, 1)
	assert.Equal(t, int64(1), lookup["a"])
}

func TestBuildLookup_EmptyStringKey(t *testing.T) {
	join, err := frame.FromColumns(
		[]string{"id", "metric"},
		[][]any{
			{"", nil},
			{int64(7), int64(8)},
		},
	)
	require.NoError(t, err)

	lookup, err := buildLookup(join, []string{"id"}, "metric")
	require.NoError(t, err)

	// only nil is null; the empty string is indexed like any other key
	require.Len(t, lookup, 1)
	assert.Equal(t, int64(7), lookup[""])
}
