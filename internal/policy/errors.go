package policy

import "errors"

var (
	ErrInvalidThresholds = errors.New("policy: thresholds must satisfy 0 <= t_approve < t_reject <= 1")
	ErrInvalidCosts      = errors.New("policy: costs must be finite and non-negative")
	ErrInvalidGrid       = errors.New("policy: invalid threshold grid")
	ErrNoFeasiblePolicy  = errors.New("policy: no feasible threshold pair")
)
