// Package oracle holds the scoring side of the policy engine: anything that turns a
// feature table into calibrated probabilities of default.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"creditpolicy/internal/dataset"
)

var (
	ErrInvalidModel    = errors.New("oracle: invalid model")
	ErrFeatureMismatch = errors.New("oracle: feature mismatch")
)

// Scorer returns one probability of default per table row, in row order.
type Scorer interface {
	ID() string
	Features() []string
	PredictProba(ctx context.Context, table dataset.Table) ([]float64, error)
}

// IsotonicMap is a fitted monotone calibration curve. Inputs outside [X[0], X[n-1]]
// are clipped to the end points; inputs between knots are linearly interpolated.
type IsotonicMap struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

func (m IsotonicMap) validate() error {
	if len(m.X) == 0 || len(m.X) != len(m.Y) {
		return fmt.Errorf("%w: calibration map needs equal non-empty x and y", ErrInvalidModel)
	}
	for i := range m.X {
		if math.IsNaN(m.X[i]) || math.IsNaN(m.Y[i]) || m.Y[i] < 0 || m.Y[i] > 1 {
			return fmt.Errorf("%w: calibration knot %d out of range", ErrInvalidModel, i)
		}
		if i > 0 && (m.X[i] < m.X[i-1] || m.Y[i] < m.Y[i-1]) {
			return fmt.Errorf("%w: calibration map is not monotone at %d", ErrInvalidModel, i)
		}
	}
	return nil
}

func (m IsotonicMap) Apply(v float64) float64 {
	n := len(m.X)
	if v <= m.X[0] {
		return m.Y[0]
	}
	if v >= m.X[n-1] {
		return m.Y[n-1]
	}
	// first knot strictly greater than v
	j := sort.Search(n, func(i int) bool { return m.X[i] > v })
	x0, x1 := m.X[j-1], m.X[j]
	y0, y1 := m.Y[j-1], m.Y[j]
	if x1 == x0 {
		return y1
	}
	return y0 + (v-x0)*(y1-y0)/(x1-x0)
}

// LinearModel is a logistic scorer over named features with an optional isotonic
// calibration step.
type LinearModel struct {
	Name         string       `json:"id"`
	FeatureNames []string     `json:"features"`
	Coefficients []float64    `json:"coefficients"`
	Intercept    float64      `json:"intercept"`
	Calibration  *IsotonicMap `json:"calibration,omitempty"`
}

func (m *LinearModel) ID() string { return m.Name }

func (m *LinearModel) Features() []string {
	out := make([]string, len(m.FeatureNames))
	copy(out, m.FeatureNames)
	return out
}

func (m *LinearModel) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidModel)
	}
	if len(m.FeatureNames) == 0 || len(m.FeatureNames) != len(m.Coefficients) {
		return fmt.Errorf("%w: %s has %d features and %d coefficients", ErrInvalidModel, m.Name, len(m.FeatureNames), len(m.Coefficients))
	}
	seen := make(map[string]struct{}, len(m.FeatureNames))
	for _, f := range m.FeatureNames {
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: %s duplicate feature %q", ErrInvalidModel, m.Name, f)
		}
		seen[f] = struct{}{}
	}
	for _, c := range append([]float64{m.Intercept}, m.Coefficients...) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: %s has a non-finite weight", ErrInvalidModel, m.Name)
		}
	}
	if m.Calibration != nil {
		return m.Calibration.validate()
	}
	return nil
}

func (m *LinearModel) PredictProba(ctx context.Context, table dataset.Table) ([]float64, error) {
	idx := make([]int, len(m.FeatureNames))
	var missing []string
	for i, f := range m.FeatureNames {
		idx[i] = table.Index(f)
		if idx[i] < 0 {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s missing columns %v", ErrFeatureMismatch, m.Name, missing)
	}
	out := make([]float64, len(table.Rows))
	for r, row := range table.Rows {
		if r%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		z := m.Intercept
		for i, col := range idx {
			v := row[col]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d feature %q is not finite", ErrFeatureMismatch, r, m.FeatureNames[i])
			}
			z += m.Coefficients[i] * v
		}
		p := sigmoid(z)
		if m.Calibration != nil {
			p = m.Calibration.Apply(p)
		}
		out[r] = math.Min(1, math.Max(0, p))
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// LoadAll loads every model file; identifiers must be unique.
func LoadAll(paths []string) ([]Scorer, error) {
	out := make([]Scorer, 0, len(paths))
	ids := make(map[string]string, len(paths))
	for _, p := range paths {
		m, err := LoadLinearModel(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := ids[m.ID()]; dup {
			return nil, fmt.Errorf("%w: id %q used by %s and %s", ErrInvalidModel, m.ID(), prev, p)
		}
		ids[m.ID()] = p
		out = append(out, m)
	}
	return out, nil
}
