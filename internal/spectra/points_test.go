package spectra

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectravue/emit-unmix/internal/emit"
)

func orthoScene(t *testing.T) *emit.Scene {
	t.Helper()
	cube := emit.NewCube(3, 3, 2)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			cube.Set(r, c, 0, float64(r*10+c))
			cube.Set(r, c, 1, float64(r*10+c)+0.5)
		}
	}
	return &emit.Scene{
		GranuleID:      "EMIT_L2A_RFL_001_20230119T114235_2301907_004",
		Vars:           map[string]*emit.Cube{"reflectance": cube},
		Latitude:       []float64{2.5, 1.5, 0.5},
		Longitude:      []float64{10.5, 11.5, 12.5},
		Wavelengths:    []float64{400, 500},
		Orthorectified: true,
	}
}

func TestExtractPointsNearestNeighbor(t *testing.T) {
	s := orthoScene(t)
	records, err := ExtractPoints(s, []Point{
		{ID: 1, Category: "soil", Latitude: 1.6, Longitude: 11.4},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// lat 1.6 -> row 1, lon 11.4 -> col 1
	assert.Equal(t, []float64{11, 11.5}, records[0].Reflectance)
	assert.Equal(t, "soil", records[0].Category)
}

func TestExtractPointsRequiresOrtho(t *testing.T) {
	s := orthoScene(t)
	s.Orthorectified = false
	_, err := ExtractPoints(s, []Point{{ID: 1}})
	assert.ErrorIs(t, err, emit.ErrState)
}

func TestExtractPointsNormalizesResidualFill(t *testing.T) {
	s := orthoScene(t)
	s.Vars["reflectance"].Set(0, 0, 0, -0.1)
	records, err := ExtractPoints(s, []Point{
		{ID: 1, Category: "water", Latitude: 2.5, Longitude: 10.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, records[0].Reflectance[0])
}

func TestNearestIndexTieBreaksLow(t *testing.T) {
	// 1.0 is exactly between 0.5 and 1.5; the lower index wins.
	assert.Equal(t, 0, nearestIndex([]float64{0.5, 1.5, 2.5}, 1.0))
	// Descending vector, same rule.
	assert.Equal(t, 0, nearestIndex([]float64{2.5, 1.5, 0.5}, 2.0))
}

func TestNearestIndexOutside(t *testing.T) {
	coords := []float64{0.5, 1.5, 2.5}
	assert.Equal(t, 0, nearestIndex(coords, -10))
	assert.Equal(t, 2, nearestIndex(coords, 10))
}

func TestFilterBands(t *testing.T) {
	records := []SpectralRecord{{
		Wavelengths: []float64{400, 500, 600},
		Reflectance: []float64{1, 2, 3},
	}}
	out := FilterBands(records, []int{0, 2})
	assert.Equal(t, []float64{400, 600}, out[0].Wavelengths)
	assert.Equal(t, []float64{1, 3}, out[0].Reflectance)
	// Source untouched.
	assert.Equal(t, []float64{1, 2, 3}, records[0].Reflectance)
}

func TestDropEmpty(t *testing.T) {
	nan := math.NaN()
	records := []SpectralRecord{
		{ID: 1, Reflectance: []float64{nan, nan}},
		{ID: 2, Reflectance: []float64{nan, 0.3}},
	}
	out := DropEmpty(records)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].ID)
}
