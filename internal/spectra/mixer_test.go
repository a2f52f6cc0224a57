package spectra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectravue/emit-unmix/internal/emit"
)

func referenceLibrary() []SpectralRecord {
	return []SpectralRecord{
		{ID: 0, Category: "soil", Reflectance: []float64{0.1, 0.2}},
		{ID: 1, Category: "water", Reflectance: []float64{0.3, 0.4}},
		{ID: 2, Category: "veg", Reflectance: []float64{0.5, 0.6}},
		{ID: 3, Category: "soil", Reflectance: []float64{0.7, 0.8}},
	}
}

func TestSynthesizeLabelsSumToOne(t *testing.T) {
	m := NewMixer(42)
	out, err := m.Synthesize(referenceLibrary(), []string{"water", "soil", "veg", "urban"}, 200)
	require.NoError(t, err)
	require.Len(t, out, 200)

	for _, rec := range out {
		require.Equal(t, []string{"soil", "urban", "veg", "water"}, rec.ClassNames)
		sum := 0.0
		for _, w := range rec.Labels {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		// urban is in the target set but never sampled.
		assert.Equal(t, 0.0, rec.Labels[1])
	}
}

func TestSynthesizeFeaturesAreConvex(t *testing.T) {
	m := NewMixer(7)
	out, err := m.Synthesize(referenceLibrary(), []string{"soil", "water", "veg"}, 100)
	require.NoError(t, err)

	// Band 0 ranges over [0.1, 0.7] in the library; convex combinations stay
	// inside that interval.
	for _, rec := range out {
		require.Len(t, rec.Features, 2)
		assert.GreaterOrEqual(t, rec.Features[0], 0.1-1e-9)
		assert.LessOrEqual(t, rec.Features[0], 0.7+1e-9)
	}
}

// Counts away from round numbers must come back complete, whatever cadence
// the progress reporting uses.
func TestSynthesizeExactCountForOddSizes(t *testing.T) {
	m := NewMixer(3)
	for _, n := range []int{1, 7, 999, 1001} {
		out, err := m.Synthesize(referenceLibrary(), []string{"soil", "water", "veg"}, n)
		require.NoError(t, err)
		assert.Len(t, out, n)
	}
}

func TestSynthesizeDeterministicForSeed(t *testing.T) {
	a, err := NewMixer(99).Synthesize(referenceLibrary(), []string{"soil", "water", "veg"}, 10)
	require.NoError(t, err)
	b, err := NewMixer(99).Synthesize(referenceLibrary(), []string{"soil", "water", "veg"}, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSynthesizeRejectsUnknownCategory(t *testing.T) {
	m := NewMixer(1)
	_, err := m.Synthesize(referenceLibrary(), []string{"soil"}, 5)
	assert.ErrorIs(t, err, emit.ErrValidation)
}

func TestSynthesizeRejectsTinyLibrary(t *testing.T) {
	m := NewMixer(1)
	_, err := m.Synthesize(referenceLibrary()[:1], []string{"soil"}, 5)
	assert.ErrorIs(t, err, emit.ErrValidation)
}

func TestSynthesizeRejectsRaggedRecords(t *testing.T) {
	lib := referenceLibrary()
	lib[2].Reflectance = []float64{0.5}
	_, err := NewMixer(1).Synthesize(lib, []string{"soil", "water", "veg"}, 5)
	assert.ErrorIs(t, err, emit.ErrValidation)
}
