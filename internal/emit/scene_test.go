package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// L2A mask scenes hold two cubes of differing band counts; Dims must always
// report the family's primary variable, never whichever cube map iteration
// yields first.
func TestDimsUsesPrimaryVariableOfMultiVarScene(t *testing.T) {
	s := &Scene{
		GranuleID: "EMIT_L2A_MASK_001_20230119T114235_2301907_004",
		Family:    FamilyForGranule("EMIT_L2A_MASK_001_20230119T114235_2301907_004"),
		Vars: map[string]*Cube{
			"mask":      NewCube(3, 4, 8),
			"band_mask": NewCube(3, 4, 36),
		},
	}

	assert.Equal(t, "mask", s.PrimaryVar())
	for i := 0; i < 20; i++ {
		rows, cols, bands := s.Dims()
		assert.Equal(t, 3, rows)
		assert.Equal(t, 4, cols)
		assert.Equal(t, 8, bands)
	}
}

func TestPrimaryVarFallsBackToSortedNames(t *testing.T) {
	s := &Scene{
		Vars: map[string]*Cube{
			"zeta":  NewCube(1, 1, 1),
			"alpha": NewCube(1, 1, 2),
		},
	}
	assert.Equal(t, "alpha", s.PrimaryVar())

	_, _, bands := s.Dims()
	assert.Equal(t, 2, bands)
}
