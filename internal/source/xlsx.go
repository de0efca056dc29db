package source

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

// ReadXLSX loads the first sheet of an XLSX workbook into a Frame. The first
// row is the header; cells are inferred the same way as CSV cells, and a
// SHAPE column is decoded from Esri JSON.
func ReadXLSX(path string) (*frame.Frame, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open xlsx %s", path)
	}
	if len(file.Sheets) == 0 {
		return nil, eris.Errorf("source: xlsx %s has no sheets", path)
	}
	sheet := file.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("source: xlsx %s first sheet is empty", path)
	}

	header := make([]string, len(sheet.Rows[0].Cells))
	for i, cell := range sheet.Rows[0].Cells {
		header[i] = cell.String()
	}

	columns := make([][]any, len(header))
	for _, row := range sheet.Rows[1:] {
		for i := range header {
			var cell any
			if i < len(row.Cells) {
				raw := row.Cells[i].String()
				if header[i] == frame.GeometryColumn {
					g, gerr := ParseEsriGeometry(raw)
					if gerr != nil {
						return nil, gerr
					}
					if g != nil {
						cell = g
					}
				} else {
					cell = inferCell(raw)
				}
			}
			columns[i] = append(columns[i], cell)
		}
	}

	f, err := frame.FromColumns(header, columns)
	if err != nil {
		return nil, err
	}
	if f.HasColumn(frame.GeometryColumn) {
		if err := f.SetGeometry(frame.GeometryColumn); err != nil {
			return nil, err
		}
	}
	return f, nil
}
