// Package serving holds the read-only state of the decision API and the per-request
// prediction path.
package serving

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"creditpolicy/internal/artifact"
	"creditpolicy/internal/dataset"
	"creditpolicy/internal/oracle"
	"creditpolicy/internal/policy"
)

var (
	ErrArtifactUnavailable = errors.New("serving: artifact unavailable")
	ErrSchemaMismatch      = errors.New("serving: feature schema mismatch")
	ErrScoring             = errors.New("serving: scoring failed")
)

// Context is built once at startup and never mutated, so it is shared by all
// requests without locking.
type Context struct {
	artifact artifact.ThresholdArtifact
	scorer   oracle.Scorer
	features []string
	known    map[string]struct{}
	fill     FillStrategy
	loadedAt time.Time
}

// NewContext checks that the artifact is valid and that the scorer can be fed from
// the reference feature list.
func NewContext(a artifact.ThresholdArtifact, scorer oracle.Scorer, features []string, fill FillStrategy) (*Context, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: no scoring model", ErrArtifactUnavailable)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: empty reference feature list", ErrSchemaMismatch)
	}
	if a.SourceModel != scorer.ID() {
		return nil, fmt.Errorf("%w: thresholds were chosen for %q but the model is %q", ErrSchemaMismatch, a.SourceModel, scorer.ID())
	}
	known := make(map[string]struct{}, len(features))
	for _, f := range features {
		known[f] = struct{}{}
	}
	var unknown []string
	for _, f := range scorer.Features() {
		if _, ok := known[f]; !ok {
			unknown = append(unknown, f)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: model features %v not in reference list", ErrSchemaMismatch, unknown)
	}
	if fill == nil {
		fill = ZeroFill{}
	}
	cp := make([]string, len(features))
	copy(cp, features)
	return &Context{artifact: a, scorer: scorer, features: cp, known: known, fill: fill, loadedAt: time.Now().UTC()}, nil
}

// ThresholdLoader is the read side of artifact.Store.
type ThresholdLoader interface {
	LoadThresholds(ctx context.Context) (artifact.ThresholdArtifact, error)
}

type LoadOptions struct {
	ModelPath    string
	FeaturesPath string
	FillStrategy string
}

// Load reads every serving input and builds the Context. Any failure is reported
// as ErrArtifactUnavailable or ErrSchemaMismatch.
func Load(ctx context.Context, thresholds ThresholdLoader, opts LoadOptions) (*Context, error) {
	a, err := thresholds.LoadThresholds(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	model, err := oracle.LoadLinearModel(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	var reference dataset.Table
	var features []string
	if strings.EqualFold(strings.TrimSpace(opts.FillStrategy), "mean") {
		reference, err = dataset.LoadTable(opts.FeaturesPath)
		features = reference.Columns
	} else {
		features, err = dataset.LoadHeader(opts.FeaturesPath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, err)
	}
	fill, err := NewFillStrategy(opts.FillStrategy, reference)
	if err != nil {
		return nil, err
	}
	return NewContext(a, model, features, fill)
}

func (c *Context) Artifact() artifact.ThresholdArtifact { return c.artifact }
func (c *Context) Thresholds() policy.ThresholdPair { return c.artifact.Pair() }
func (c *Context) ModelID() string { return c.scorer.ID() }
func (c *Context) FillName() string { return c.fill.Name() }
func (c *Context) LoadedAt() time.Time { return c.loadedAt }

func (c *Context) Features() []string {
	out := make([]string, len(c.features))
	copy(out, c.features)
	return out
}

type Prediction struct {
	PD              float64              `json:"pd"`
	Decision        policy.Decision      `json:"decision"`
	Thresholds      policy.ThresholdPair `json:"thresholds"`
	MissingFeatures []string             `json:"missing_features"`
	ExtraFeatures   []string             `json:"extra_features"`
}

// Predict scores one feature vector. Missing reference features are filled and
// listed; unknown names are ignored and listed.
func (c *Context) Predict(ctx context.Context, features map[string]float64) (Prediction, error) {
	row := make([]float64, len(c.features))
	missing := []string{}
	for i, name := range c.features {
		v, ok := features[name]
		if !ok {
			missing = append(missing, name)
			v = c.fill.Value(name)
		}
		row[i] = v
	}
	extra := []string{}
	for name := range features {
		if !c.isKnown(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	scores, err := c.scorer.PredictProba(ctx, dataset.Table{Columns: c.features, Rows: [][]float64{row}})
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrScoring, err)
	}
	if len(scores) != 1 {
		return Prediction{}, fmt.Errorf("%w: model returned %d scores for one row", ErrScoring, len(scores))
	}
	pd := scores[0]
	if math.IsNaN(pd) || pd < 0 || pd > 1 {
		return Prediction{}, fmt.Errorf("%w: model returned pd=%v", ErrScoring, pd)
	}
	pair := c.artifact.Pair()
	return Prediction{
		PD:              pd,
		Decision:        policy.Decide(pd, pair),
		Thresholds:      pair,
		MissingFeatures: missing,
		ExtraFeatures:   extra,
	}, nil
}

func (c *Context) isKnown(name string) bool {
	_, ok := c.known[name]
	return ok
}
