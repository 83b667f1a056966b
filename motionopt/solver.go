package motionopt

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/trajopt/diffmap"
	"go.viam.com/trajopt/trajectory"
)

var (
	// ErrSingularHessian is returned when no damping makes the hessian positive definite and a
	// gradient step does not decrease the cost either.
	ErrSingularHessian = errors.New("hessian could not be regularized")

	// ErrInfeasibleStart is returned when the initial trajectory has an infinite cost, which happens
	// when it violates the joint bounds.
	ErrInfeasibleStart = errors.New("initial trajectory has infinite cost")
)

// Status describes why the optimizer stopped.
type Status int

// the set of optimizer statuses. The zero value is never returned by Optimize.
const (
	Unknown Status = iota
	Converged
	IterationLimit
	SingularHessian
	LineSearchFailure
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case IterationLimit:
		return "iteration_limit"
	case SingularHessian:
		return "singular_hessian"
	case LineSearchFailure:
		return "line_search_failure"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result summarizes a run of the optimizer.
type Result struct {
	Status       Status
	Iterations   int
	InitialCost  float64
	Cost         float64
	GradientNorm float64
	// Cost after each accepted step.
	Costs   []float64
	Runtime time.Duration
}

// Optimize minimizes the objective starting from traj and writes the result back into it. q_0 is
// reset to q_init, and q_T to q_goal when the goal is clamped. Not converging within
// MaxIterations is reported through the status, not as an error.
func (mo *MotionOptimization) Optimize(ctx context.Context, traj *trajectory.Trajectory) (*Result, error) {
	if err := mo.checkTrajectory(traj); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := traj.SetConfiguration(0, mo.qInit); err != nil {
		return nil, err
	}
	if mo.opts.Boundary == ClampBoundary {
		if err := traj.SetConfiguration(mo.opts.T, mo.qGoal); err != nil {
			return nil, err
		}
	}

	x := traj.ActiveSegment()
	var res *Result
	var err error
	switch mo.opts.Solver {
	case GonumNewtonSolver:
		res, err = mo.minimize(ctx, x, &optimize.Newton{})
	case LBFGSSolver:
		res, err = mo.minimize(ctx, x, &optimize.LBFGS{})
	default:
		res, err = mo.newton(ctx, x)
	}
	if res == nil {
		return nil, err
	}
	res.Runtime = time.Since(start)
	if setErr := traj.SetActiveSegment(x); setErr != nil {
		return nil, setErr
	}
	summary := []interface{}{
		"solver", mo.opts.Solver,
		"status", res.Status,
		"iterations", res.Iterations,
		"initial_cost", res.InitialCost,
		"cost", res.Cost,
		"gradient_norm", res.GradientNorm,
		"runtime", res.Runtime,
	}
	if res.Status == Converged {
		mo.logger.Infow("motion optimization done", summary...)
	} else {
		mo.logger.Warnw("motion optimization stopped before converging", summary...)
	}
	return res, err
}

// newton runs the damped Newton iterations, updating x in place.
func (mo *MotionOptimization) newton(ctx context.Context, x *mat.VecDense) (*Result, error) {
	value, grad, hess := mo.objective.Evaluate(x)
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return nil, ErrInfeasibleStart
	}
	logger := mo.logger.Sublogger("newton")
	res := &Result{InitialCost: value, Cost: value}
	for {
		res.GradientNorm = mat.Norm(grad, 2)
		if res.GradientNorm < mo.opts.GradientTolerance {
			res.Status = Converged
			return res, nil
		}
		if res.Iterations >= mo.opts.MaxIterations {
			res.Status = IterationLimit
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			res.Status = Cancelled
			return res, err
		}

		step, lambda, factorized := mo.newtonStep(hess, grad)
		var next *mat.VecDense
		var nextValue, alpha float64
		accepted := false
		if factorized {
			next, nextValue, alpha, accepted = mo.lineSearch(x, value, grad, step)
		}
		if !accepted {
			var descent mat.VecDense
			descent.ScaleVec(-1, grad)
			next, nextValue, alpha, accepted = mo.lineSearch(x, value, grad, &descent)
			if !accepted {
				if !factorized {
					res.Status = SingularHessian
					return res, ErrSingularHessian
				}
				res.Status = LineSearchFailure
				return res, nil
			}
			logger.CDebugw(ctx, "newton step rejected, took a gradient step",
				"iteration", res.Iterations, "factorized", factorized)
		}

		x.CopyVec(next)
		res.Iterations++
		res.Cost = nextValue
		res.Costs = append(res.Costs, nextValue)
		logger.CDebugw(ctx, "newton iteration",
			"iteration", res.Iterations,
			"cost", nextValue,
			"gradient_norm", res.GradientNorm,
			"step", alpha,
			"regularization", lambda,
		)
		value, grad, hess = mo.objective.Evaluate(x)
	}
}

// newtonStep solves (H + λI)Δ = −g, growing λ until the damped hessian can be factorized. It
// reports false when every attempt failed.
func (mo *MotionOptimization) newtonStep(hess *mat.SymBandDense, grad *mat.VecDense) (*mat.VecDense, float64, bool) {
	lambda := 0.
	for attempt := 0; attempt <= mo.opts.MaxRegularizationAttempts; attempt++ {
		var chol mat.BandCholesky
		if chol.Factorize(addDiagonal(hess, lambda)) {
			var step mat.VecDense
			if err := chol.SolveVecTo(&step, grad); err == nil {
				step.ScaleVec(-1, &step)
				return &step, lambda, true
			}
		}
		if lambda == 0 {
			lambda = mo.opts.Regularization
		} else {
			lambda *= 10
		}
	}
	return nil, lambda, false
}

// addDiagonal returns h + λI as a new matrix.
func addDiagonal(h *mat.SymBandDense, lambda float64) *mat.SymBandDense {
	n, k := h.SymBand()
	out := mat.NewSymBandDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := i; j <= min(i+k, n-1); j++ {
			out.SetSymBand(i, j, h.At(i, j))
		}
		out.SetSymBand(i, i, out.At(i, i)+lambda)
	}
	return out
}

// lineSearch backtracks along step from x until the Armijo condition holds. Infinite or NaN costs
// are treated like any other insufficient decrease.
func (mo *MotionOptimization) lineSearch(
	x *mat.VecDense, value float64, grad, step *mat.VecDense,
) (*mat.VecDense, float64, float64, bool) {
	slope := mat.Dot(grad, step)
	if !(slope < 0) {
		return nil, value, 0, false
	}
	for alpha := 1.; alpha >= minStepSize; alpha *= mo.opts.LineSearchShrink {
		candidate := mat.NewVecDense(x.Len(), nil)
		candidate.AddScaledVec(x, alpha, step)
		v := diffmap.Value(mo.objective, candidate)
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		if v <= value+mo.opts.Armijo*alpha*slope {
			return candidate, v, alpha, true
		}
	}
	return nil, value, 0, false
}

// costRecorder keeps the cost at every major iteration of a gonum method.
type costRecorder struct {
	costs []float64
}

func (r *costRecorder) Init() error { return nil }

func (r *costRecorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op == optimize.MajorIteration {
		r.costs = append(r.costs, loc.F)
	}
	return nil
}

// minimize runs a gonum optimize method on the dense objective, updating x in place. The
// gradient threshold of gonum uses the infinity norm, which is never larger than the two-norm
// checked afterwards.
func (mo *MotionOptimization) minimize(ctx context.Context, x *mat.VecDense, method optimize.Method) (*Result, error) {
	obj := mo.objective
	dim := x.Len()
	initial := diffmap.Value(obj, x)
	if math.IsInf(initial, 0) || math.IsNaN(initial) {
		return nil, ErrInfeasibleStart
	}

	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			return diffmap.Value(obj, mat.NewVecDense(dim, y))
		},
		Grad: func(grad, y []float64) {
			copy(grad, obj.Gradient(mat.NewVecDense(dim, y)).RawVector().Data)
		},
		Hess: func(hess *mat.SymDense, y []float64) {
			hess.CopySym(obj.Hessian(mat.NewVecDense(dim, y)))
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	recorder := &costRecorder{}
	settings := &optimize.Settings{
		GradientThreshold: mo.opts.GradientTolerance / math.Sqrt(float64(dim)),
		Converger:         optimize.NeverTerminate{},
		MajorIterations:   mo.opts.MaxIterations,
		Recorder:          recorder,
	}
	initX := make([]float64, dim)
	copy(initX, x.RawVector().Data)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if result == nil {
		// gonum polls the status before starting, so a cancelled run may have no result.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Result{
				Status:       Cancelled,
				InitialCost:  initial,
				Cost:         initial,
				GradientNorm: floats.Norm(obj.Gradient(x).RawVector().Data, 2),
			}, ctxErr
		}
		return nil, errors.Wrap(err, "gonum optimization failed")
	}

	res := &Result{
		InitialCost: initial,
		Iterations:  result.MajorIterations,
		Costs:       recorder.costs,
	}
	// gonum tracks the best location seen; keep the start if it never improved on it.
	if !math.IsInf(result.F, 0) && result.F <= initial && len(result.X) == dim {
		x.CopyVec(mat.NewVecDense(dim, result.X))
		res.Cost = result.F
	} else {
		res.Cost = initial
	}
	res.GradientNorm = floats.Norm(obj.Gradient(x).RawVector().Data, 2)

	switch {
	case ctx.Err() != nil:
		res.Status = Cancelled
		return res, ctx.Err()
	case res.GradientNorm < mo.opts.GradientTolerance || result.Status == optimize.GradientThreshold:
		res.Status = Converged
	case result.Status == optimize.IterationLimit:
		res.Status = IterationLimit
	default:
		res.Status = LineSearchFailure
		mo.logger.Sublogger(string(mo.opts.Solver)).CDebugw(ctx, "gonum optimization stopped early",
			"status", result.Status, "error", err)
	}
	return res, nil
}
