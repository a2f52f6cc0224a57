package spectra

import (
	"fmt"
	"sort"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spectravue/emit-unmix/internal/emit"
)

// SyntheticRecord is a convex combination of one or two reference spectra.
// Labels holds the class-proportion vector over the full target class set, in
// ClassNames order; entries for undrawn classes are zero and the vector sums
// to one.
type SyntheticRecord struct {
	Features   []float64
	ClassNames []string
	Labels     []float64
}

// Mixer synthesizes training records from a reference library.
type Mixer struct {
	rng *rand.Rand
}

// NewMixer seeds the mixture sampler. The same seed reproduces the same
// synthetic set for the same inputs.
func NewMixer(seed uint64) *Mixer {
	return &Mixer{rng: rand.New(rand.NewSource(seed))}
}

// Synthesize draws n mixtures. Each mixture combines k in {1,2} distinct
// records with Dirichlet(1) weights and labels the result with per-class
// weight sums over targetClasses sorted by name. Output order is draw order.
func (m *Mixer) Synthesize(records []SpectralRecord, targetClasses []string, n int) ([]SyntheticRecord, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 reference records, got %d", emit.ErrValidation, len(records))
	}
	features := len(records[0].Reflectance)
	for _, rec := range records[1:] {
		if len(rec.Reflectance) != features {
			return nil, fmt.Errorf("%w: record %d has %d bands, expected %d", emit.ErrValidation, rec.ID, len(rec.Reflectance), features)
		}
	}

	classes := append([]string(nil), targetClasses...)
	sort.Strings(classes)
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	for _, rec := range records {
		if _, ok := classIdx[rec.Category]; !ok {
			return nil, fmt.Errorf("%w: record %d category %q not in target class set", emit.ErrValidation, rec.ID, rec.Category)
		}
	}

	bar := progressbar.Default(int64(n), "Synthesizing mixtures")
	out := make([]SyntheticRecord, 0, n)
	for i := 0; i < n; i++ {
		k := m.rng.Intn(2) + 1
		picked := m.sampleDistinct(len(records), k)

		dir := distuv.NewDirichlet(ones(k), m.rng)
		weights := dir.Rand(nil)

		feat := make([]float64, features)
		labels := make([]float64, len(classes))
		for j, ri := range picked {
			rec := records[ri]
			w := weights[j]
			for b, v := range rec.Reflectance {
				feat[b] += w * v
			}
			labels[classIdx[rec.Category]] += w
		}

		out = append(out, SyntheticRecord{Features: feat, ClassNames: classes, Labels: labels})
		bar.Add(1)
	}
	bar.Finish()
	return out, nil
}

// sampleDistinct draws k distinct indices from [0, n) without replacement.
func (m *Mixer) sampleDistinct(n, k int) []int {
	picked := make([]int, 0, k)
	seen := make(map[int]bool, k)
	for len(picked) < k {
		i := m.rng.Intn(n)
		if seen[i] {
			continue
		}
		seen[i] = true
		picked = append(picked, i)
	}
	return picked
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
