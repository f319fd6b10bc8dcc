package report

import (
	"strings"
	"unicode"
)

// labels maps an output stem to its display label per language.
var labels = map[string]map[string]string{
	"lufttemperatur_min_mittel_max": {"de": "Lufttemperatur (Min/Mittel/Max)", "en": "Air temperature (min/mean/max)"},
	"frost_eistage":                 {"de": "Frost- und Eistage", "en": "Frost and ice days"},
	"schneedeckentage":              {"de": "Schneedeckentage", "en": "Snow cover days"},
	"sommer_heisse_tage":            {"de": "Sommer- und Heiße Tage", "en": "Summer and hot days"},
	"niederschlag_trockenheit":      {"de": "Niederschlag + Trockenheitsindex", "en": "Precipitation + drought index"},
	"starkniederschlag_tage":        {"de": "Starkniederschlagstage", "en": "Heavy precipitation days"},
	"sonnenscheindauer":             {"de": "Sonnenscheindauer", "en": "Sunshine duration"},
	"vegetationsperiode":            {"de": "Vegetationsperiode", "en": "Growing season"},
	"vegetationsperiode_dauer":      {"de": "Dauer der Vegetationsperiode", "en": "Growing season length"},
	"map":                           {"de": "Interaktive Karte", "en": "Interactive map"},
}

// Label returns the display label of an output stem such as
// "frost_eistage". Unknown stems are title-cased.
func Label(stem, lang string) string {
	if l, ok := labels[stem]; ok {
		if s, ok := l[lang]; ok {
			return s
		}
		return l["de"]
	}
	return titleCase(strings.TrimSpace(strings.ReplaceAll(stem, "_", " ")))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
