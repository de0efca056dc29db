package source

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// pandasIndexColumn is the header pandas writes for an unnamed index when a
// spatially enabled dataframe is exported to CSV. It is dropped on read.
const pandasIndexColumn = "Unnamed: 0"

// ReadCSV parses a CSV export of a spatial table into a Frame. SHAPE cells
// are decoded from Esri JSON; other cells are inferred as int, float, bool,
// or string, with empty cells read as null.
func ReadCSV(r io.Reader) (*frame.Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "source: read csv header")
	}

	columns := make([][]any, len(header))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "source: read csv row")
		}
		for i := range header {
			var cell any
			if i < len(record) {
				if header[i] == frame.GeometryColumn {
					g, gerr := ParseEsriGeometry(record[i])
					if gerr != nil {
						return nil, gerr
					}
					if g != nil {
						cell = g
					}
				} else {
					cell = inferCell(record[i])
				}
			}
			columns[i] = append(columns[i], cell)
		}
	}

	f, err := frame.FromColumns(header, columns)
	if err != nil {
		return nil, err
	}

	// The exported pandas index is almost always the first column.
	if len(header) > 0 && header[0] == pandasIndexColumn {
		f.Drop(pandasIndexColumn)
	}

	if f.HasColumn(frame.GeometryColumn) {
		if err := f.SetGeometry(frame.GeometryColumn); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ReadCSVFile parses the CSV file at path into a Frame.
func ReadCSVFile(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open csv %s", path)
	}
	defer file.Close() //nolint:errcheck

	return ReadCSV(file)
}

// WriteCSV writes a Frame as CSV, serializing geometry cells as Esri JSON
// so that ReadCSV can round trip the output.
func WriteCSV(f *frame.Frame, w io.Writer) error {
	writer := csv.NewWriter(w)
	cols := f.Columns()
	if err := writer.Write(cols); err != nil {
		return eris.Wrap(err, "source: write csv header")
	}

	columns := make([][]any, len(cols))
	for i, name := range cols {
		vals, err := f.Col(name)
		if err != nil {
			return err
		}
		columns[i] = vals
	}

	record := make([]string, len(cols))
	for row := 0; row < f.NumRows(); row++ {
		for i := range cols {
			cell, err := formatCell(columns[i][row])
			if err != nil {
				return err
			}
			record[i] = cell
		}
		if err := writer.Write(record); err != nil {
			return eris.Wrap(err, "source: write csv row")
		}
	}

	writer.Flush()
	return eris.Wrap(writer.Error(), "source: flush csv")
}

// WriteCSVFile writes a Frame to the CSV file at path.
func WriteCSVFile(f *frame.Frame, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "source: create csv %s", path)
	}
	defer file.Close() //nolint:errcheck

	return WriteCSV(f, file)
}

func inferCell(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return x
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

func formatCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case geom.T:
		return EncodeEsriGeometry(t)
	default:
		return "", eris.Errorf("source: cannot format cell of type %T", v)
	}
}
