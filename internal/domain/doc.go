// Package domain models the DWD annual climate grids and the statistics
// derived from them for a user supplied region.
//
// # Data Source
//
// Annual grids for Germany are published by the Deutscher Wetterdienst (DWD)
// Climate Data Center at
// https://opendata.dwd.de/climate_environment/CDC/grids_germany/annual/.
// Each indicator (air temperature, frost days, precipitation, ...) lives in its
// own folder. Every folder holds one ESRI ASCII grid per year, gzip compressed,
// plus a PDF describing the dataset. The grids carry no spatial reference; they
// are in Gauss-Krüger zone 3 (EPSG:31467), supplied separately as a .prj WKT.
//
// # Naming Conventions
//
// Remote names look like:
//
//	grids_germany_annual_air_temp_max_188117.asc.gz
//
// The trailing "17" on most files is a dataset version tag, not part of the
// year. [CanonicalName] reduces such names to
//
//	air_temp_max_1881.asc
//
// Two years are ambiguous because the year itself ends in 17: names ending in
// "_1917" and "_2017" are kept as they are. Some archives with an ".asc.gz"
// suffix are actually ZIP containers, so format detection never trusts the
// extension.
//
// # Statistics Keying
//
// The canonical stem always ends in a four digit year. [SplitKey] takes the
// last four characters as the year and everything before the separating
// underscore as the variable. The persisted JSON has the shape
//
//	{"air_temp_max": {"1881": [{"min": .., "max": .., "mean": .., "count": ..}]}}
//
// with exactly one record per year, because statistics are computed over the
// dissolved region.
package domain
