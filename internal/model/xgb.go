package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
)

// XGBRegressor evaluates a gradient-boosted tree ensemble saved with
// xgboost's JSON save_model format. Supports the gbtree booster with one
// output group per tree (multi-target regression and multi-class both encode
// the output index in tree_info).
type XGBRegressor struct {
	trees     []tree
	treeGroup []int
	baseScore float64
	outputs   int
	features  int
}

type tree struct {
	left       []int
	right      []int
	splitIndex []int
	splitCond  []float64
	defaultL   []bool
}

type xgbFile struct {
	Learner struct {
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				TreeInfo []int     `json:"tree_info"`
				Trees    []xgbTree `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumTarget  string `json:"num_target"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
	} `json:"learner"`
}

type xgbTree struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float64  `json:"split_conditions"`
	DefaultLeft     boolValues `json:"default_left"`
}

// boolValues accepts both encodings xgboost has used for default_left:
// integer 0/1 arrays and boolean arrays.
type boolValues []bool

func (b *boolValues) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err == nil {
		out := make([]bool, len(ints))
		for i, v := range ints {
			out[i] = v != 0
		}
		*b = out
		return nil
	}
	var bools []bool
	if err := json.Unmarshal(data, &bools); err != nil {
		return err
	}
	*b = bools
	return nil
}

// LoadXGBRegressor reads a serialized model artifact from disk.
func LoadXGBRegressor(path string) (*XGBRegressor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	m, err := ParseXGBRegressor(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	return m, nil
}

// ParseXGBRegressor decodes an xgboost JSON model dump.
func ParseXGBRegressor(data []byte) (*XGBRegressor, error) {
	var f xgbFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	booster := f.Learner.GradientBooster
	if booster.Name != "" && booster.Name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q, only gbtree is supported", booster.Name)
	}
	if len(booster.Model.Trees) == 0 {
		return nil, fmt.Errorf("model contains no trees")
	}
	if len(booster.Model.TreeInfo) != len(booster.Model.Trees) {
		return nil, fmt.Errorf("tree_info has %d entries for %d trees", len(booster.Model.TreeInfo), len(booster.Model.Trees))
	}

	m := &XGBRegressor{
		treeGroup: booster.Model.TreeInfo,
		baseScore: parseModelParam(f.Learner.LearnerModelParam.BaseScore, 0.5),
		features:  int(parseModelParam(f.Learner.LearnerModelParam.NumFeature, 0)),
	}

	outputs := 1
	for _, g := range m.treeGroup {
		if g+1 > outputs {
			outputs = g + 1
		}
	}
	if n := int(parseModelParam(f.Learner.LearnerModelParam.NumTarget, 0)); n > outputs {
		outputs = n
	}
	if n := int(parseModelParam(f.Learner.LearnerModelParam.NumClass, 0)); n > outputs {
		outputs = n
	}
	m.outputs = outputs

	for ti, t := range booster.Model.Trees {
		n := len(t.LeftChildren)
		if len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n {
			return nil, fmt.Errorf("tree %d has inconsistent node arrays", ti)
		}
		dl := t.DefaultLeft
		if len(dl) == 0 {
			dl = make(boolValues, n)
		}
		m.trees = append(m.trees, tree{
			left:       t.LeftChildren,
			right:      t.RightChildren,
			splitIndex: t.SplitIndices,
			splitCond:  t.SplitConditions,
			defaultL:   dl,
		})
	}
	return m, nil
}

func parseModelParam(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func (m *XGBRegressor) NumOutputs() int { return m.outputs }

// NumFeatures returns the feature count the model was trained with, 0 when
// the dump does not record it.
func (m *XGBRegressor) NumFeatures() int { return m.features }

// Predict walks every tree for every row, summing leaf values into the tree's
// output group and adding the base score. Missing features (NaN) follow the
// recorded default direction.
func (m *XGBRegressor) Predict(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, row := range features {
		if m.features > 0 && len(row) != m.features {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), m.features)
		}
		pred := make([]float64, m.outputs)
		for j := range pred {
			pred[j] = m.baseScore
		}
		for ti := range m.trees {
			pred[m.treeGroup[ti]] += m.trees[ti].score(row)
		}
		out[i] = pred
	}
	return out, nil
}

func (t *tree) score(row []float64) float64 {
	node := 0
	for t.left[node] != -1 {
		v := row[t.splitIndex[node]]
		if math.IsNaN(v) {
			if t.defaultL[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		} else if v < t.splitCond[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.splitCond[node]
}
