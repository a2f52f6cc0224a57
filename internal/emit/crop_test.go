package emit

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cropScene(rows, cols int) *Scene {
	return &Scene{
		GranuleID:    "EMIT_L2A_RFL_001_20230119T114235_2301907_004",
		Vars:         map[string]*Cube{"reflectance": rampCube(rows, cols, 2)},
		GLT:          identityGLT(rows, cols),
		Geotransform: [6]float64{-50, 0.5, 0, 10, 0, -0.5},
	}
}

func rectangle(minLon, minLat, maxLon, maxLat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}}
}

func TestCropFullExtentRoundTrips(t *testing.T) {
	s := cropScene(4, 4)
	shape := rectangle(-51, 7, -47, 11)

	cropped, win, err := Crop(s, shape)
	require.NoError(t, err)
	assert.Equal(t, Window{Row0: 0, Col0: 0, Rows: 4, Cols: 4}, win)

	require.Equal(t, s.GLT.Rows, cropped.GLT.Rows)
	require.Equal(t, s.GLT.Cols, cropped.GLT.Cols)
	assert.Equal(t, s.GLT.X, cropped.GLT.X)
	assert.Equal(t, s.GLT.Y, cropped.GLT.Y)

	for i := 0; i < 6; i++ {
		assert.InDelta(t, s.Geotransform[i], cropped.Geotransform[i], math.Abs(s.Geotransform[1])/2+1e-9, "geotransform field %d", i)
	}

	// The cropped scene orthorectifies without further adjustment.
	ortho, err := Orthorectify(cropped)
	require.NoError(t, err)
	assert.Equal(t, s.Vars["reflectance"].Data, ortho.Vars["reflectance"].Data)
}

func TestCropWindowReducesSensorGrid(t *testing.T) {
	s := cropScene(4, 4)
	// Covers only the lower-right quadrant of the 4x4 geographic grid:
	// lon in [-49, -48], lat in [8, 9].
	shape := rectangle(-48.9, 8.1, -48.1, 8.9)

	cropped, win, err := Crop(s, shape)
	require.NoError(t, err)

	rows, cols, bands := cropped.Dims()
	assert.LessOrEqual(t, rows, 4)
	assert.LessOrEqual(t, cols, 4)
	assert.Equal(t, 2, bands)
	assert.Less(t, rows*cols, 16)

	// Surviving GLT entries are re-based to start at 1 and stay in bounds.
	minX, minY := math.MaxInt, math.MaxInt
	for r := 0; r < cropped.GLT.Rows; r++ {
		for c := 0; c < cropped.GLT.Cols; c++ {
			if !cropped.GLT.Valid(r, c) {
				continue
			}
			i := r*cropped.GLT.Cols + c
			minX = min(minX, cropped.GLT.X[i])
			minY = min(minY, cropped.GLT.Y[i])
			assert.LessOrEqual(t, cropped.GLT.X[i], cols)
			assert.LessOrEqual(t, cropped.GLT.Y[i], rows)
		}
	}
	assert.Equal(t, 1, minX)
	assert.Equal(t, 1, minY)

	// The reported window matches the cropped sensor grid, so a full-grid
	// mask blocked by it stays aligned with the scene.
	assert.Equal(t, rows, win.Rows)
	assert.Equal(t, cols, win.Cols)
	assert.GreaterOrEqual(t, win.Row0, 0)
	assert.GreaterOrEqual(t, win.Col0, 0)

	// And the result still orthorectifies cleanly.
	_, err = Orthorectify(cropped)
	assert.NoError(t, err)
}

func TestCropWindowAlignsQualityMask(t *testing.T) {
	s := cropScene(4, 4)
	// Lower-right quadrant: sensor rows and cols {2, 3} under the identity GLT.
	shape := rectangle(-48.9, 8.1, -48.1, 8.9)

	cropped, win, err := Crop(s, shape)
	require.NoError(t, err)
	require.Equal(t, Window{Row0: 2, Col0: 2, Rows: 2, Cols: 2}, win)

	full := NewMask(4, 4)
	full.Data[3*4+3] = 1
	blocked, err := full.Block(win)
	require.NoError(t, err)

	rows, cols, _ := cropped.Dims()
	require.Equal(t, rows, blocked.Rows)
	require.Equal(t, cols, blocked.Cols)

	// Sensor pixel (3,3) lands at (1,1) inside the window; the rest stay clear.
	assert.Equal(t, uint8(1), blocked.At(1, 1))
	assert.Equal(t, uint8(0), blocked.At(0, 0))
	assert.Equal(t, uint8(0), blocked.At(0, 1))
	assert.Equal(t, uint8(0), blocked.At(1, 0))
}

func TestMaskBlockRejectsOutOfBounds(t *testing.T) {
	m := NewMask(3, 3)
	_, err := m.Block(Window{Row0: 2, Col0: 2, Rows: 2, Cols: 2})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = m.Block(Window{Row0: -1, Col0: 0, Rows: 1, Cols: 1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = m.Block(Window{Row0: 0, Col0: 0, Rows: 0, Cols: 1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCropRejectsDisjointPolygon(t *testing.T) {
	s := cropScene(3, 3)
	_, _, err := Crop(s, rectangle(100, 100, 101, 101))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCropRejectsBadStates(t *testing.T) {
	s := cropScene(3, 3)
	shape := rectangle(-51, 7, -47, 11)

	_, _, err := Crop(s, nil)
	assert.ErrorIs(t, err, ErrValidation)

	ortho, err := Orthorectify(s)
	require.NoError(t, err)
	_, _, err = Crop(ortho, shape)
	assert.ErrorIs(t, err, ErrState)

	s.GLT = nil
	_, _, err = Crop(s, shape)
	assert.ErrorIs(t, err, ErrDataIntegrity)
}
