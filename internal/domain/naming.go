package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

const remotePrefix = "grids_germany_annual_"

// knownSuffixes are stripped in order; only the first match is removed.
var knownSuffixes = []string{".asc.gz", ".zip", ".asc", ".tif"}

// CanonicalName reduces a DWD file name (or path) to "<variable>_<year>.asc".
//
// A trailing "17" version tag is dropped unless the name ends in "_1917" or
// "_2017", where the digits belong to the year.
func CanonicalName(file string) string {
	name := strings.ReplaceAll(filepath.Base(file), remotePrefix, "")
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	switch {
	case strings.HasSuffix(name, "_1917"), strings.HasSuffix(name, "_2017"):
	case strings.HasSuffix(name, "17"):
		name = name[:len(name)-2]
	}
	name = strings.TrimRight(name, "_")
	return name + ".asc"
}

// CanonicalStem is CanonicalName without the extension.
func CanonicalStem(file string) string {
	return strings.TrimSuffix(CanonicalName(file), ".asc")
}

// SplitKey splits a canonical stem such as "air_temp_max_1971" into its
// variable ("air_temp_max") and year ("1971"). The year is always the last
// four characters; one separator character precedes it.
func SplitKey(stem string) (variable, year string, err error) {
	if len(stem) < 6 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, stem)
	}
	year = stem[len(stem)-4:]
	for _, r := range year {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("%w: %q has no year suffix", ErrInvalidName, stem)
		}
	}
	return stem[:len(stem)-5], year, nil
}
