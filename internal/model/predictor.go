package model

// Predictor is the inference contract of a pre-trained per-pixel regression
// model: one feature vector in, one value per output class out. Training is
// not this pipeline's concern.
type Predictor interface {
	NumOutputs() int
	// Predict runs the model over a batch of feature vectors and returns one
	// row of per-class values per input row.
	Predict(features [][]float64) ([][]float64, error)
}
