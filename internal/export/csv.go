package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/fmuoria/resume-screener/internal/table"
)

// CSVFileName is the download name of the filtered rows.
const CSVFileName = "resultados_filtrados.csv"

// WriteCSV writes rows as UTF-8 CSV: a header of column names, then one
// record per row. Nulls are empty fields and nested values compact JSON.
func WriteCSV(w io.Writer, rows *table.Frame) error {
	cw := csv.NewWriter(w)

	columns := rows.Columns()
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(columns))
	for _, r := range rows.Records() {
		for j, c := range columns {
			record[j] = r.Text(c)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", r.Index(), err)
		}
	}

	cw.Flush()
	return cw.Error()
}
