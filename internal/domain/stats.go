package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// ZonalStats summarizes the raster cells touching a region. Min, Max and Mean
// are nil when no valid cell touches the region.
type ZonalStats struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
	Count int      `json:"count"`
}

// ZonalStatsTable maps variable -> year -> per-feature statistics.
type ZonalStatsTable map[string]map[string][]ZonalStats

// Add files the statistics of one raster under its canonical stem.
func (t ZonalStatsTable) Add(stem string, stats []ZonalStats) error {
	variable, year, err := SplitKey(stem)
	if err != nil {
		return err
	}
	if t[variable] == nil {
		t[variable] = make(map[string][]ZonalStats)
	}
	t[variable][year] = stats
	return nil
}

// Variables returns the table's variables sorted by name.
func (t ZonalStatsTable) Variables() []string {
	out := make([]string, 0, len(t))
	for v := range t {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Years returns the years recorded for variable in ascending numeric order.
func (t ZonalStatsTable) Years(variable string) []string {
	years := make([]string, 0, len(t[variable]))
	for y := range t[variable] {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool {
		a, _ := strconv.Atoi(years[i])
		b, _ := strconv.Atoi(years[j])
		return a < b
	})
	return years
}

// Series is one variable's statistic over time, ready for presentation.
type Series struct {
	Variable string
	Years    []int
	Min      []float64
	Mean     []float64
	Max      []float64
}

// Series flattens a variable into parallel slices. Years without a valid
// statistic are skipped.
func (t ZonalStatsTable) Series(variable string) Series {
	s := Series{Variable: variable}
	for _, y := range t.Years(variable) {
		for _, rec := range t[variable][y] {
			if rec.Min == nil || rec.Mean == nil || rec.Max == nil {
				continue
			}
			year, err := strconv.Atoi(y)
			if err != nil {
				continue
			}
			s.Years = append(s.Years, year)
			s.Min = append(s.Min, *rec.Min)
			s.Mean = append(s.Mean, *rec.Mean)
			s.Max = append(s.Max, *rec.Max)
		}
	}
	return s
}

// WriteFile persists the table as JSON.
func (t ZonalStatsTable) WriteFile(path string) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	return nil
}

// ReadStatsTable loads a table persisted by WriteFile.
func ReadStatsTable(path string) (ZonalStatsTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statistics: %w", err)
	}
	var t ZonalStatsTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode statistics: %w", err)
	}
	return t, nil
}
