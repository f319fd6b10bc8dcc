package domain

// Variable is a DWD climate indicator identified by its remote folder name.
type Variable struct {
	Folder  string
	Enabled bool
}

// Variables is the fixed catalog of annual grid folders. Disabled folders are
// published by DWD but not part of the analysis.
var Variables = []Variable{
	{Folder: "air_temperature_max", Enabled: true},
	{Folder: "air_temperature_mean", Enabled: true},
	{Folder: "air_temperature_min", Enabled: true},
	{Folder: "drought_index", Enabled: true},
	{Folder: "erosivity", Enabled: false},
	{Folder: "frost_days", Enabled: true},
	{Folder: "hot_days", Enabled: true},
	{Folder: "ice_days", Enabled: true},
	{Folder: "phenology", Enabled: true},
	{Folder: "precipGE10mm_days", Enabled: true},
	{Folder: "precipGE20mm_days", Enabled: true},
	{Folder: "precipGE30mm_days", Enabled: true},
	{Folder: "precipitation", Enabled: true},
	{Folder: "radiation_diffuse", Enabled: false},
	{Folder: "radiation_direct", Enabled: false},
	{Folder: "radiation_global", Enabled: false},
	{Folder: "snowcover_days", Enabled: true},
	{Folder: "summer_days", Enabled: true},
	{Folder: "sunshine_duration", Enabled: true},
	{Folder: "vegetation_begin", Enabled: true},
	{Folder: "vegetation_end", Enabled: true},
}

// EnabledVariables returns the catalog entries used by the analysis, in catalog order.
func EnabledVariables() []Variable {
	out := make([]Variable, 0, len(Variables))
	for _, v := range Variables {
		if v.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// Suffix sets used when listing the remote folders.
var (
	RasterSuffixes   = []string{".asc.gz", ".zip"}
	DocumentSuffixes = []string{".pdf"}
)
