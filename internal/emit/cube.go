package emit

import "fmt"

// Cube is a dense float64 array in sensor or geographic space.
// Layout is row-major with bands interleaved per pixel: (row*Cols+col)*Bands+band.
// A 2-D plane is a Cube with Bands == 1.
type Cube struct {
	Rows  int
	Cols  int
	Bands int
	Data  []float64
}

func NewCube(rows, cols, bands int) *Cube {
	return &Cube{
		Rows:  rows,
		Cols:  cols,
		Bands: bands,
		Data:  make([]float64, rows*cols*bands),
	}
}

// NewFilledCube allocates a cube with every sample set to fill.
func NewFilledCube(rows, cols, bands int, fill float64) *Cube {
	c := NewCube(rows, cols, bands)
	for i := range c.Data {
		c.Data[i] = fill
	}
	return c
}

func (c *Cube) At(row, col, band int) float64 {
	return c.Data[(row*c.Cols+col)*c.Bands+band]
}

func (c *Cube) Set(row, col, band int, v float64) {
	c.Data[(row*c.Cols+col)*c.Bands+band] = v
}

// Pixel returns the spectrum at (row, col) as a slice aliasing the cube storage.
func (c *Cube) Pixel(row, col int) []float64 {
	off := (row*c.Cols + col) * c.Bands
	return c.Data[off : off+c.Bands]
}

// Clone returns a deep copy. Masking passes operate on copies so a source
// cube can feed several orthorectification calls without aliasing.
func (c *Cube) Clone() *Cube {
	out := &Cube{Rows: c.Rows, Cols: c.Cols, Bands: c.Bands, Data: make([]float64, len(c.Data))}
	copy(out.Data, c.Data)
	return out
}

// Block copies the spatial window [row0,row0+rows) x [col0,col0+cols) with all bands.
func (c *Cube) Block(row0, col0, rows, cols int) (*Cube, error) {
	if row0 < 0 || col0 < 0 || row0+rows > c.Rows || col0+cols > c.Cols {
		return nil, fmt.Errorf("block (%d,%d)+(%dx%d) outside cube %dx%d", row0, col0, rows, cols, c.Rows, c.Cols)
	}
	out := NewCube(rows, cols, c.Bands)
	for r := 0; r < rows; r++ {
		src := ((row0+r)*c.Cols + col0) * c.Bands
		dst := r * cols * c.Bands
		copy(out.Data[dst:dst+cols*c.Bands], c.Data[src:src+cols*c.Bands])
	}
	return out, nil
}

// SelectBands returns a new cube keeping only the listed band indices, in order.
func (c *Cube) SelectBands(bands []int) *Cube {
	out := NewCube(c.Rows, c.Cols, len(bands))
	for r := 0; r < c.Rows; r++ {
		for cl := 0; cl < c.Cols; cl++ {
			src := c.Pixel(r, cl)
			dst := out.Pixel(r, cl)
			for i, b := range bands {
				dst[i] = src[b]
			}
		}
	}
	return out
}
