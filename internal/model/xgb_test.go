package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two output groups, one stump each. Group 0 splits on feature 0 at 0.5
// (left leaf 1.0, right leaf 2.0, missing goes left); group 1 is a single
// leaf worth 10.0.
const tinyModel = `{
  "learner": {
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "tree_info": [0, 1],
        "trees": [
          {
            "left_children": [1, -1, -1],
            "right_children": [2, -1, -1],
            "split_indices": [0, 0, 0],
            "split_conditions": [0.5, 1.0, 2.0],
            "default_left": [1, 0, 0]
          },
          {
            "left_children": [-1],
            "right_children": [-1],
            "split_indices": [0],
            "split_conditions": [10.0],
            "default_left": [0]
          }
        ]
      }
    },
    "learner_model_param": {
      "base_score": "0.25",
      "num_target": "2",
      "num_feature": "2"
    }
  }
}`

func TestParseXGBRegressor(t *testing.T) {
	m, err := ParseXGBRegressor([]byte(tinyModel))
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumOutputs())
	assert.Equal(t, 2, m.NumFeatures())
}

func TestPredictSplitsAndBaseScore(t *testing.T) {
	m, err := ParseXGBRegressor([]byte(tinyModel))
	require.NoError(t, err)

	out, err := m.Predict([][]float64{
		{0.0, 0.0},
		{0.9, 0.0},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.InDelta(t, 0.25+1.0, out[0][0], 1e-12)
	assert.InDelta(t, 0.25+2.0, out[1][0], 1e-12)
	assert.InDelta(t, 0.25+10.0, out[0][1], 1e-12)
	assert.InDelta(t, 0.25+10.0, out[1][1], 1e-12)
}

func TestPredictMissingFollowsDefaultLeft(t *testing.T) {
	m, err := ParseXGBRegressor([]byte(tinyModel))
	require.NoError(t, err)

	out, err := m.Predict([][]float64{{math.NaN(), 0.0}})
	require.NoError(t, err)
	assert.InDelta(t, 0.25+1.0, out[0][0], 1e-12)
}

func TestPredictRejectsWrongFeatureCount(t *testing.T) {
	m, err := ParseXGBRegressor([]byte(tinyModel))
	require.NoError(t, err)

	_, err = m.Predict([][]float64{{1.0}})
	assert.Error(t, err)
}

func TestParseBooleanDefaultLeft(t *testing.T) {
	body := `{
	  "learner": {
	    "gradient_booster": {
	      "model": {
	        "tree_info": [0],
	        "trees": [{
	          "left_children": [1, -1, -1],
	          "right_children": [2, -1, -1],
	          "split_indices": [0, 0, 0],
	          "split_conditions": [0.5, -1.0, 1.0],
	          "default_left": [true, false, false]
	        }]
	      }
	    },
	    "learner_model_param": {"base_score": "0"}
	  }
	}`
	m, err := ParseXGBRegressor([]byte(body))
	require.NoError(t, err)

	out, err := m.Predict([][]float64{{math.NaN()}})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, out[0][0], 1e-12)
}

func TestParseRejectsInconsistentTrees(t *testing.T) {
	body := `{
	  "learner": {
	    "gradient_booster": {
	      "model": {
	        "tree_info": [0],
	        "trees": [{
	          "left_children": [1, -1],
	          "right_children": [2, -1, -1],
	          "split_indices": [0, 0, 0],
	          "split_conditions": [0.5, -1.0, 1.0]
	        }]
	      }
	    }
	  }
	}`
	_, err := ParseXGBRegressor([]byte(body))
	assert.Error(t, err)
}

func TestLoadXGBRegressor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(tinyModel), 0o644))

	m, err := LoadXGBRegressor(path)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumOutputs())

	_, err = LoadXGBRegressor(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
