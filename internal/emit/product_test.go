package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGranuleID(t *testing.T) {
	assert.Equal(t,
		"EMIT_L2A_RFL_001_20230119T114235_2301907_004",
		GranuleID("s3://lp-prod-protected/EMITL2ARFL.001/EMIT_L2A_RFL_001_20230119T114235_2301907_004/EMIT_L2A_RFL_001_20230119T114235_2301907_004.nc"))
	assert.Equal(t,
		"EMIT_L2A_MASK_001_20230115T132032_2301508_014",
		GranuleID("/data/granules/EMIT_L2A_MASK_001_20230115T132032_2301508_014.nc"))
	assert.Equal(t,
		"EMIT_L1B_RAD_001_20230119T114235_2301907_004",
		GranuleID(`C:\data\EMIT_L1B_RAD_001_20230119T114235_2301907_004.nc`))
}

func TestFamilyForGranuleFirstMatchWins(t *testing.T) {
	assert.Equal(t, "wavelengths", FamilyForGranule("EMIT_L2A_RFL_001_x").BandVar)
	assert.Equal(t, "wavelengths", FamilyForGranule("EMIT_L2A_RFLUNCERT_001_x").BandVar)
	assert.Equal(t, "mask_bands", FamilyForGranule("EMIT_L2A_MASK_001_x").BandVar)
	assert.Equal(t, "observation_bands", FamilyForGranule("EMIT_L1B_OBS_001_x").BandVar)
	assert.Equal(t, "mineral_name", FamilyForGranule("EMIT_L2B_MIN_001_x").BandVar)

	// The uncertainty product matches before the plain mineral marker would.
	f := FamilyForGranule("EMIT_L2B_MINUNC_001_x")
	assert.Equal(t, "L2B_MINUNC", f.Marker)
	assert.Equal(t, "", f.BandVar)

	assert.Equal(t, ProductFamily{}, FamilyForGranule("not_an_emit_granule"))
}

func TestCubeBlockAndSelectBands(t *testing.T) {
	cube := rampCube(3, 3, 2)

	block, err := cube.Block(1, 1, 2, 2)
	assert.NoError(t, err)
	assert.Equal(t, cube.At(1, 1, 0), block.At(0, 0, 0))
	assert.Equal(t, cube.At(2, 2, 1), block.At(1, 1, 1))

	_, err = cube.Block(2, 2, 2, 2)
	assert.Error(t, err)

	sel := cube.SelectBands([]int{1})
	assert.Equal(t, 1, sel.Bands)
	assert.Equal(t, cube.At(0, 0, 1), sel.At(0, 0, 0))
}
