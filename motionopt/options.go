// Package motionopt builds the CHOMP-style objective over a trajectory and minimizes it with a
// damped Newton method on the banded hessian.
package motionopt

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// default values for optimization options.
const (
	// number of steps between q_init and q_goal.
	defaultHorizon = 20

	// configuration space dimension.
	defaultDimension = 2

	// time between two waypoints, in seconds.
	defaultDt = 0.1

	// weights of the individual cost terms.
	defaultVelocityScalar     = 1.
	defaultAccelerationScalar = 0.01
	defaultObstacleScalar     = 1.
	defaultTerminalScalar     = 1e5
	defaultBarrierScalar      = 1e-3

	// Newton iterations before giving up with IterationLimit.
	defaultMaxIterations = 100

	// stop once the two-norm of the gradient falls below this.
	defaultGradientTolerance = 1e-6

	// first damping added to the hessian diagonal when it is not positive definite.
	defaultRegularization = 1e-6

	// the damping grows tenfold on each failed factorization, up to this many times.
	defaultMaxRegularizationAttempts = 20

	// backtracking line search parameters.
	defaultLineSearchShrink = 0.5
	defaultArmijo           = 1e-4

	// steps shorter than this end the line search.
	minStepSize = 1e-10
)

// BoundaryMode selects how the goal configuration is enforced.
type BoundaryMode string

// the set of supported boundary modes.
const (
	// PenaltyBoundary adds TerminalScalar·‖q_T − q_goal‖² to the objective.
	PenaltyBoundary BoundaryMode = "penalty"
	// ClampBoundary pins q_T to q_goal and removes it from the free variables.
	ClampBoundary BoundaryMode = "clamp"
)

// SolverType selects the minimization backend.
type SolverType string

// the set of supported solvers.
const (
	NewtonSolver      SolverType = "newton"
	GonumNewtonSolver SolverType = "gonum-newton"
	LBFGSSolver       SolverType = "lbfgs"
)

// Options describe a motion optimization problem and how to solve it.
type Options struct {
	// Number of steps; the trajectory has T+2 waypoints.
	T int `json:"horizon"`

	// Dimension of one configuration.
	Dim int `json:"dimension"`

	// Time between two waypoints.
	Dt float64 `json:"dt"`

	QInit []float64 `json:"q_init"`
	QGoal []float64 `json:"q_goal"`

	// Weights of each cost term. A zero weight leaves the term out.
	VelocityScalar     float64 `json:"velocity_scalar"`
	AccelerationScalar float64 `json:"acceleration_scalar"`
	ObstacleScalar     float64 `json:"obstacle_scalar"`
	TerminalScalar     float64 `json:"terminal_scalar"`
	BarrierScalar      float64 `json:"barrier_scalar"`

	// Shaping of the obstacle potential ρ·exp(−α·(sdf − margin)). A zero decay keeps the default
	// α; a positive margin keeps waypoints further from obstacles.
	ObstacleDecay  float64 `json:"obstacle_decay,omitempty"`
	ObstacleMargin float64 `json:"obstacle_margin,omitempty"`

	// Optional joint bounds, enforced on waypoints 1 … T by a log barrier.
	Lower []float64 `json:"lower_bounds,omitempty"`
	Upper []float64 `json:"upper_bounds,omitempty"`

	Boundary BoundaryMode `json:"boundary"`
	Solver   SolverType   `json:"solver"`

	MaxIterations             int     `json:"max_iterations"`
	GradientTolerance         float64 `json:"gradient_tolerance"`
	Regularization            float64 `json:"regularization"`
	MaxRegularizationAttempts int     `json:"max_regularization_attempts"`
	LineSearchShrink          float64 `json:"line_search_shrink"`
	Armijo                    float64 `json:"armijo"`

	// Number of goroutines evaluating cliques. Values below 2 evaluate serially.
	Parallelism int `json:"parallelism"`
}

// DefaultOptions returns options for a 2D problem from the origin to (1, 1).
func DefaultOptions() *Options {
	return &Options{
		T:                         defaultHorizon,
		Dim:                       defaultDimension,
		Dt:                        defaultDt,
		QInit:                     []float64{0, 0},
		QGoal:                     []float64{1, 1},
		VelocityScalar:            defaultVelocityScalar,
		AccelerationScalar:        defaultAccelerationScalar,
		ObstacleScalar:            defaultObstacleScalar,
		TerminalScalar:            defaultTerminalScalar,
		BarrierScalar:             defaultBarrierScalar,
		Boundary:                  PenaltyBoundary,
		Solver:                    NewtonSolver,
		MaxIterations:             defaultMaxIterations,
		GradientTolerance:         defaultGradientTolerance,
		Regularization:            defaultRegularization,
		MaxRegularizationAttempts: defaultMaxRegularizationAttempts,
		LineSearchShrink:          defaultLineSearchShrink,
		Armijo:                    defaultArmijo,
	}
}

// HasBounds reports whether joint bounds are configured.
func (o *Options) HasBounds() bool {
	return len(o.Lower) > 0 || len(o.Upper) > 0
}

// Validate returns every problem with the options at once.
func (o *Options) Validate() error {
	var err error
	if o.T < 1 {
		err = multierr.Append(err, errors.Errorf("horizon must be at least 1, got %d", o.T))
	}
	if o.Dim < 1 {
		err = multierr.Append(err, errors.Errorf("dimension must be positive, got %d", o.Dim))
	}
	if !(o.Dt > 0) {
		err = multierr.Append(err, errors.Errorf("dt must be positive, got %v", o.Dt))
	}
	if len(o.QInit) != o.Dim {
		err = multierr.Append(err, errors.Errorf("q_init has %d values, expected %d", len(o.QInit), o.Dim))
	}
	if len(o.QGoal) != o.Dim {
		err = multierr.Append(err, errors.Errorf("q_goal has %d values, expected %d", len(o.QGoal), o.Dim))
	}
	for name, v := range map[string]float64{
		"velocity_scalar":     o.VelocityScalar,
		"acceleration_scalar": o.AccelerationScalar,
		"obstacle_scalar":     o.ObstacleScalar,
		"terminal_scalar":     o.TerminalScalar,
		"barrier_scalar":      o.BarrierScalar,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			err = multierr.Append(err, errors.Errorf("%s must be finite and non-negative, got %v", name, v))
		}
	}
	if o.ObstacleDecay < 0 || math.IsNaN(o.ObstacleDecay) || math.IsInf(o.ObstacleDecay, 0) {
		err = multierr.Append(err, errors.Errorf("obstacle_decay must be finite and non-negative, got %v", o.ObstacleDecay))
	}
	if math.IsNaN(o.ObstacleMargin) || math.IsInf(o.ObstacleMargin, 0) {
		err = multierr.Append(err, errors.Errorf("obstacle_margin must be finite, got %v", o.ObstacleMargin))
	}
	if o.HasBounds() {
		if len(o.Lower) != o.Dim || len(o.Upper) != o.Dim {
			err = multierr.Append(err, errors.Errorf("bounds must both have %d values, got %d and %d",
				o.Dim, len(o.Lower), len(o.Upper)))
		} else {
			for i := range o.Lower {
				if !(o.Lower[i] < o.Upper[i]) {
					err = multierr.Append(err, errors.Errorf("lower bound %d (%v) is not below upper bound (%v)",
						i, o.Lower[i], o.Upper[i]))
				}
			}
		}
	}
	switch o.Boundary {
	case PenaltyBoundary, ClampBoundary:
	default:
		err = multierr.Append(err, errors.Errorf("unknown boundary mode %q", o.Boundary))
	}
	switch o.Solver {
	case NewtonSolver, GonumNewtonSolver, LBFGSSolver:
	default:
		err = multierr.Append(err, errors.Errorf("unknown solver %q", o.Solver))
	}
	if o.MaxIterations < 1 {
		err = multierr.Append(err, errors.Errorf("max_iterations must be positive, got %d", o.MaxIterations))
	}
	if !(o.GradientTolerance > 0) {
		err = multierr.Append(err, errors.Errorf("gradient_tolerance must be positive, got %v", o.GradientTolerance))
	}
	if !(o.Regularization > 0) {
		err = multierr.Append(err, errors.Errorf("regularization must be positive, got %v", o.Regularization))
	}
	if o.MaxRegularizationAttempts < 0 {
		err = multierr.Append(err, errors.Errorf("max_regularization_attempts must not be negative, got %d",
			o.MaxRegularizationAttempts))
	}
	if !(o.LineSearchShrink > 0 && o.LineSearchShrink < 1) {
		err = multierr.Append(err, errors.Errorf("line_search_shrink must be in (0, 1), got %v", o.LineSearchShrink))
	}
	if !(o.Armijo > 0 && o.Armijo < 1) {
		err = multierr.Append(err, errors.Errorf("armijo must be in (0, 1), got %v", o.Armijo))
	}
	return err
}
