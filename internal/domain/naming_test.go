package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"grids_germany_annual_air_temp_max_1971.asc.gz", "air_temp_max_1971.asc"},
		{"grids_germany_annual_air_temp_max_188117.asc.gz", "air_temp_max_1881.asc"},
		{"grids_germany_annual_frost_days_199917.zip", "frost_days_1999.asc"},
		{"/data/grids_germany_annual_precipitation_201817.asc.gz", "precipitation_2018.asc"},
		// year itself ends in 17: never shortened
		{"grids_germany_annual_air_temp_mean_2017.asc.gz", "air_temp_mean_2017.asc"},
		{"grids_germany_annual_air_temp_mean_1917.asc.gz", "air_temp_mean_1917.asc"},
		// version tag after a 2017 year is still dropped
		{"grids_germany_annual_air_temp_mean_201717.asc.gz", "air_temp_mean_2017.asc"},
		// already canonical inputs are stable
		{"air_temp_max_1971.asc", "air_temp_max_1971.asc"},
		{"air_temp_max_1971.tif", "air_temp_max_1971.asc"},
		{"sunshine_duration_2017.tif", "sunshine_duration_2017.asc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalName(tt.in))
		})
	}
}

func TestCanonicalName_Idempotent(t *testing.T) {
	first := CanonicalName("grids_germany_annual_hot_days_195117.asc.gz")
	assert.Equal(t, first, CanonicalName(first))
}

func TestCanonicalName_OnlyFirstSuffixStripped(t *testing.T) {
	// ".asc.gz" matches before ".asc", so the inner extension does not survive.
	assert.Equal(t, "x_1990.asc", CanonicalName("x_1990.asc.gz"))
}

func TestSplitKey(t *testing.T) {
	v, y, err := SplitKey("air_temp_max_1971")
	require.NoError(t, err)
	assert.Equal(t, "air_temp_max", v)
	assert.Equal(t, "1971", y)

	v, y, err = SplitKey("precipGE10mm_days_2017")
	require.NoError(t, err)
	assert.Equal(t, "precipGE10mm_days", v)
	assert.Equal(t, "2017", y)
}

func TestSplitKey_Invalid(t *testing.T) {
	for _, stem := range []string{"", "1971", "air_temp_max", "abc_19x1"} {
		_, _, err := SplitKey(stem)
		assert.ErrorIs(t, err, ErrInvalidName, stem)
	}
}

func TestRemoteRef_FileName(t *testing.T) {
	r := RemoteRef{URL: "https://example.org/annual/frost_days/grids_germany_annual_frost_days_199917.asc.gz?x=1"}
	assert.Equal(t, "grids_germany_annual_frost_days_199917.asc.gz", r.FileName())
}
