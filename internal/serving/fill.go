package serving

import (
	"fmt"
	"strings"

	"creditpolicy/internal/dataset"
)

// FillStrategy supplies a value for a feature absent from a request.
type FillStrategy interface {
	Name() string
	Value(feature string) float64
}

type ZeroFill struct{}

func (ZeroFill) Name() string { return "zero" }
func (ZeroFill) Value(string) float64 { return 0 }

// MeanFill substitutes the reference mean of the feature; unknown features get zero.
type MeanFill struct {
	means map[string]float64
}

func NewMeanFill(means map[string]float64) MeanFill {
	cp := make(map[string]float64, len(means))
	for k, v := range means {
		cp[k] = v
	}
	return MeanFill{means: cp}
}

func (MeanFill) Name() string { return "mean" }

func (m MeanFill) Value(feature string) float64 {
	return m.means[feature]
}

// NewFillStrategy builds the named strategy. reference is only read for "mean".
func NewFillStrategy(name string, reference dataset.Table) (FillStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zero":
		return ZeroFill{}, nil
	case "mean":
		if reference.Len() == 0 {
			return nil, fmt.Errorf("%w: mean fill needs a non-empty reference table", ErrArtifactUnavailable)
		}
		return NewMeanFill(reference.Means()), nil
	}
	return nil, fmt.Errorf("serving: unknown fill strategy %q", name)
}
