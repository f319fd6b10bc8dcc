package report

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// statsRow is one (variable, year) row of the CSV export. Empty cells mark
// years where the region covered no valid pixels.
type statsRow struct {
	Variable string `csv:"variable"`
	Year     string `csv:"year"`
	Min      string `csv:"min"`
	Mean     string `csv:"mean"`
	Max      string `csv:"max"`
	Count    int    `csv:"count"`
}

func formatStat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func statsRows(t domain.ZonalStatsTable) []*statsRow {
	var rows []*statsRow
	for _, v := range t.Variables() {
		for _, y := range t.Years(v) {
			for _, s := range t[v][y] {
				rows = append(rows, &statsRow{
					Variable: v,
					Year:     y,
					Min:      formatStat(s.Min),
					Mean:     formatStat(s.Mean),
					Max:      formatStat(s.Max),
					Count:    s.Count,
				})
			}
		}
	}
	return rows
}

// WriteCSV writes the statistics table as a flat CSV file.
func WriteCSV(t domain.ZonalStatsTable, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	rows := statsRows(t)
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}
