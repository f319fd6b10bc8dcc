package report

import (
	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// Palette shared with the web client.
const (
	colorMint   = "#64f2c8"
	colorCoral  = "#ff7a5c"
	colorIce    = "#6bc6ff"
	colorDeep   = "#3b6cff"
	colorSun    = "#ffc857"
	colorLeaf   = "#7ad36f"
	colorViolet = "#9b6bff"
	colorInk    = "#1d2328"
	colorMuted  = "#4d585f"
	colorSand   = "#f7f3ec"
	colorPanel  = "#fbf8f2"
	colorGrid   = "#d6cdc1"
)

// text holds a German and an English string.
type text struct{ de, en string }

func (t text) in(lang string) string {
	if lang == "en" {
		return t.en
	}
	return t.de
}

// chartSpec describes one plot built from the statistics table.
type chartSpec struct {
	stem      string
	variables []string
	build     func(t domain.ZonalStatsTable, lang string) chart
}

// meanOf returns the yearly means of variable scaled by factor.
func meanOf(t domain.ZonalStatsTable, variable string, factor float64) series {
	s := t.Series(variable)
	out := make(series, len(s.Years))
	for i, y := range s.Years {
		out[y] = s.Mean[i] * factor
	}
	return out
}

func zeroLine() series { return nil }

var daysLabel = text{"Tage", "Days"}

var charts = []chartSpec{
	{
		stem:      "lufttemperatur_min_mittel_max",
		variables: []string{"air_temp_max", "air_temp_mean", "air_temp_min"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			// Grids store tenths of a degree.
			tmax := meanOf(t, "air_temp_max", 0.1)
			tmean := meanOf(t, "air_temp_mean", 0.1)
			tmin := meanOf(t, "air_temp_min", 0.1)
			from := max(tmax.first(), tmean.first(), tmin.first())
			tmax, tmean, tmin = tmax.from(from), tmean.from(from), tmin.from(from)
			return chart{
				title:  text{"Lufttemperatur (Min / Mittel / Max)", "Air temperature (min / mean / max)"}.in(lang),
				yLabel: text{"Temperatur in °C", "Temperature in °C"}.in(lang),
				lines: []line{
					{label: text{"Maximale Lufttemperatur", "Maximum air temperature"}.in(lang), color: colorCoral, data: tmax},
					{label: text{"Mittlere Lufttemperatur", "Mean air temperature"}.in(lang), color: colorMint, data: tmean},
					{label: text{"Minimale Lufttemperatur", "Minimum air temperature"}.in(lang), color: colorIce, data: tmin},
				},
				bands: []band{
					{upper: tmax, lower: tmean, color: colorCoral, alpha: 0.18},
					{upper: tmean, lower: tmin, color: colorIce, alpha: 0.18},
				},
				yMax: tmax.max() * 1.2,
			}
		},
	},
	{
		stem:      "frost_eistage",
		variables: []string{"frost_days", "ice_days"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			frost := meanOf(t, "frost_days", 1)
			ice := meanOf(t, "ice_days", 1)
			return chart{
				title:  text{"Frost- und Eistage", "Frost and ice days"}.in(lang),
				yLabel: daysLabel.in(lang),
				lines: []line{
					{label: text{"Frosttage (min 0°C)", "Frost days (min 0°C)"}.in(lang), color: colorIce, data: frost},
					{label: text{"Eistage (max 0°C)", "Ice days (max 0°C)"}.in(lang), color: colorDeep, data: ice},
				},
				bands: []band{
					{upper: frost, lower: ice, color: colorIce, alpha: 0.18},
					{upper: ice, lower: zeroLine(), color: colorDeep, alpha: 0.15},
				},
				yMax: frost.max() * 1.2,
			}
		},
	},
	{
		stem:      "schneedeckentage",
		variables: []string{"snowcover_days"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			snow := meanOf(t, "snowcover_days", 1)
			return chart{
				title:  text{"Schneedeckentage", "Snow cover days"}.in(lang),
				yLabel: daysLabel.in(lang),
				lines: []line{
					{label: text{"Tage mit > 1cm Schneehöhe", "Days with > 1 cm snow depth"}.in(lang), color: colorIce, data: snow},
				},
				bands: []band{{upper: snow, lower: zeroLine(), color: colorIce, alpha: 0.18}},
				yMax:  snow.max() * 1.2,
			}
		},
	},
	{
		stem:      "sommer_heisse_tage",
		variables: []string{"summer_days", "hot_days"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			summer := meanOf(t, "summer_days", 1)
			hot := meanOf(t, "hot_days", 1)
			return chart{
				title:  text{"Sommer- und Heiße Tage", "Summer and hot days"}.in(lang),
				yLabel: daysLabel.in(lang),
				lines: []line{
					{label: text{"Sommertage (max 25°C)", "Summer days (max 25°C)"}.in(lang), color: colorSun, data: summer},
					{label: text{"Heiße Tage (max 30°C)", "Hot days (max 30°C)"}.in(lang), color: colorCoral, data: hot},
				},
				bands: []band{
					{upper: summer, lower: hot, color: colorSun, alpha: 0.2},
					{upper: hot, lower: zeroLine(), color: colorCoral, alpha: 0.15},
				},
				yMax: summer.max() * 1.2,
			}
		},
	},
	{
		stem:      "niederschlag_trockenheit",
		variables: []string{"precipitation", "drought_index"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			precip := meanOf(t, "precipitation", 1)
			drought := meanOf(t, "drought_index", 10)
			return chart{
				title:  text{"Niederschlag + Trockenheitsindex", "Precipitation + drought index"}.in(lang),
				yLabel: text{"Niederschlag in mm", "Precipitation in mm"}.in(lang),
				lines: []line{
					{label: text{"Niederschlag in mm", "Precipitation in mm"}.in(lang), color: colorIce, data: precip},
					{label: text{"Trockenheitsindex (mm/°C)", "Drought index (mm/°C)"}.in(lang), color: colorCoral, data: drought},
				},
				yMax: max(precip.max(), drought.max()) * 1.2,
			}
		},
	},
	{
		stem:      "starkniederschlag_tage",
		variables: []string{"precipGE10mm_days", "precipGE20mm_days", "precipGE30mm_days"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			p10 := meanOf(t, "precipGE10mm_days", 1)
			p20 := meanOf(t, "precipGE20mm_days", 1)
			p30 := meanOf(t, "precipGE30mm_days", 1)
			return chart{
				title:  text{"Starkniederschlagstage", "Heavy precipitation days"}.in(lang),
				yLabel: daysLabel.in(lang),
				lines: []line{
					{label: text{"Anzahl der Tage mit Niederschlagshöhe >= 10 mm", "Days with precipitation >= 10 mm"}.in(lang), color: colorIce, data: p10},
					{label: text{"Anzahl der Tage mit Niederschlagshöhe >= 20 mm", "Days with precipitation >= 20 mm"}.in(lang), color: colorDeep, data: p20},
					{label: text{"Anzahl der Tage mit Niederschlagshöhe >= 30 mm", "Days with precipitation >= 30 mm"}.in(lang), color: colorViolet, data: p30},
				},
				bands: []band{
					{upper: p10, lower: p20, color: colorIce, alpha: 0.15},
					{upper: p20, lower: p30, color: colorDeep, alpha: 0.15},
					{upper: p30, lower: zeroLine(), color: colorViolet, alpha: 0.15},
				},
				yMax: p10.max() * 1.2,
			}
		},
	},
	{
		stem:      "sonnenscheindauer",
		variables: []string{"sunshine_duration"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			sun := meanOf(t, "sunshine_duration", 1.0/365)
			return chart{
				title:  text{"Sonnenscheindauer", "Sunshine duration"}.in(lang),
				yLabel: text{"Stunden pro Tag", "Hours per day"}.in(lang),
				lines: []line{
					{label: text{"Durchschnittliche Sonnenstunden pro Tag", "Average sunshine hours per day"}.in(lang), color: colorSun, data: sun},
				},
				bands: []band{{upper: sun, lower: zeroLine(), color: colorSun, alpha: 0.2}},
				yMax:  sun.max() * 1.2,
			}
		},
	},
	{
		stem:      "vegetationsperiode",
		variables: []string{"vegetation_begin", "vegetation_end"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			begin := meanOf(t, "vegetation_begin", 1)
			end := meanOf(t, "vegetation_end", 1)
			return chart{
				title:  text{"Vegetationsperiode", "Growing season"}.in(lang),
				yLabel: text{"Tag im Jahr", "Day of year"}.in(lang),
				lines: []line{
					{label: text{"Ende der vegetativen Phase", "End of growing season"}.in(lang), color: colorCoral, data: end},
					{label: text{"Beginn der vegetativen Phase", "Start of growing season"}.in(lang), color: colorLeaf, data: begin},
				},
				bands: []band{{upper: end, lower: begin, color: colorLeaf, alpha: 0.2}},
				yMax:  365,
			}
		},
	},
	{
		stem:      "vegetationsperiode_dauer",
		variables: []string{"vegetation_begin", "vegetation_end"},
		build: func(t domain.ZonalStatsTable, lang string) chart {
			begin := meanOf(t, "vegetation_begin", 1)
			end := meanOf(t, "vegetation_end", 1)
			length := make(series, len(end))
			for y, e := range end {
				if b, ok := begin[y]; ok {
					length[y] = e - b
				}
			}
			return chart{
				title:  text{"Dauer der Vegetationsperiode", "Growing season length"}.in(lang),
				yLabel: daysLabel.in(lang),
				lines: []line{
					{label: text{"Vegetative Phase", "Growing season"}.in(lang), color: colorLeaf, data: length},
				},
				bands: []band{{upper: length, lower: zeroLine(), color: colorLeaf, alpha: 0.2}},
				yMax:  365,
			}
		},
	},
}
