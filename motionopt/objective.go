package motionopt

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/cliques"
	"go.viam.com/trajopt/costterms"
	"go.viam.com/trajopt/diffmap"
	"go.viam.com/trajopt/logging"
	"go.viam.com/trajopt/trajectory"
)

// TrajectoryObjective is the scalar cost of the active segment q_1 … q_{T+1}. It prepends the fixed
// q_init and evaluates a clique network on the full trajectory buffer.
//
// Clamped coordinates are held fixed: their gradient entries are zero and their hessian rows and
// columns are those of the identity, so a Newton step leaves them unchanged.
type TrajectoryObjective struct {
	network *cliques.FunctionNetwork
	qInit   *mat.VecDense
	clamped []int
}

// NewTrajectoryObjective wraps network, whose first element is fixed to qInit. clamped lists
// indices of the active segment that stay fixed.
func NewTrajectoryObjective(network *cliques.FunctionNetwork, qInit mat.Vector, clamped ...int) (*TrajectoryObjective, error) {
	n := network.CliqueElementDimension()
	if qInit.Len() != n {
		return nil, diffmap.NewDimensionMismatchError("q_init", n, qInit.Len())
	}
	o := &TrajectoryObjective{network: network, qInit: mat.VecDenseCopyOf(qInit)}
	for _, c := range clamped {
		if c < 0 || c >= o.InputDimension() {
			return nil, errors.Errorf("clamped index %d not in [0, %d)", c, o.InputDimension())
		}
		o.clamped = append(o.clamped, c)
	}
	return o, nil
}

// InputDimension returns the length of the active segment.
func (o *TrajectoryObjective) InputDimension() int {
	return o.network.InputDimension() - o.qInit.Len()
}

// OutputDimension is always 1.
func (o *TrajectoryObjective) OutputDimension() int { return 1 }

// Network returns the underlying clique network.
func (o *TrajectoryObjective) Network() *cliques.FunctionNetwork { return o.network }

func (o *TrajectoryObjective) full(active mat.Vector) *mat.VecDense {
	if active.Len() != o.InputDimension() {
		panic(diffmap.NewDimensionMismatchError("active segment", o.InputDimension(), active.Len()))
	}
	n := o.qInit.Len()
	x := mat.NewVecDense(o.network.InputDimension(), nil)
	x.SliceVec(0, n).(*mat.VecDense).CopyVec(o.qInit)
	x.SliceVec(n, x.Len()).(*mat.VecDense).CopyVec(active)
	return x
}

// Forward returns the cost of the trajectory q_init, active.
func (o *TrajectoryObjective) Forward(active mat.Vector) *mat.VecDense {
	return o.network.Forward(o.full(active))
}

// Gradient returns the gradient with respect to the active segment.
func (o *TrajectoryObjective) Gradient(active mat.Vector) *mat.VecDense {
	return o.restrictGradient(o.network.Gradient(o.full(active)))
}

// Jacobian returns the gradient as a row.
func (o *TrajectoryObjective) Jacobian(active mat.Vector) *mat.Dense {
	return mat.NewDense(1, o.InputDimension(), o.Gradient(active).RawVector().Data)
}

// HessianBand returns the hessian with respect to the active segment in banded storage.
func (o *TrajectoryObjective) HessianBand(active mat.Vector) *mat.SymBandDense {
	return o.restrictHessian(o.network.HessianBand(o.full(active)))
}

// Hessian returns the hessian as a dense matrix.
func (o *TrajectoryObjective) Hessian(active mat.Vector) *mat.SymDense {
	band := o.HessianBand(active)
	h := mat.NewSymDense(o.InputDimension(), nil)
	band.DoNonZero(func(i, j int, v float64) {
		if i <= j {
			h.SetSym(i, j, v)
		}
	})
	return h
}

// Evaluate returns the value, gradient and banded hessian in one pass over the network.
func (o *TrajectoryObjective) Evaluate(active mat.Vector) (float64, *mat.VecDense, *mat.SymBandDense) {
	value, grad, hess := o.network.Evaluate(o.full(active))
	return value, o.restrictGradient(grad), o.restrictHessian(hess)
}

func (o *TrajectoryObjective) restrictGradient(g *mat.VecDense) *mat.VecDense {
	out := mat.VecDenseCopyOf(g.SliceVec(o.qInit.Len(), g.Len()))
	for _, c := range o.clamped {
		out.SetVec(c, 0)
	}
	return out
}

func (o *TrajectoryObjective) restrictHessian(h *mat.SymBandDense) *mat.SymBandDense {
	n, m := o.qInit.Len(), o.InputDimension()
	_, k := h.SymBand()
	k = min(k, m-1)
	out := mat.NewSymBandDense(m, k, nil)
	for i := 0; i < m; i++ {
		for j := i; j <= min(i+k, m-1); j++ {
			out.SetSymBand(i, j, h.At(n+i, n+j))
		}
	}
	for _, c := range o.clamped {
		for j := max(0, c-k); j <= min(m-1, c+k); j++ {
			out.SetSymBand(min(c, j), max(c, j), 0)
		}
		out.SetSymBand(c, c, 1)
	}
	return out
}

// MotionOptimization holds the objective of one problem and the settings used to minimize it.
type MotionOptimization struct {
	opts       *Options
	logger     logging.Logger
	qInit      *mat.VecDense
	qGoal      *mat.VecDense
	smoothness *cliques.FunctionNetwork
	objective  *TrajectoryObjective
}

// NewMotionOptimization builds the objective described by opts. sdf is the signed distance field
// of the workspace and may be nil, in which case no obstacle cost is added.
func NewMotionOptimization(opts *Options, sdf diffmap.Map, logger logging.Logger) (*MotionOptimization, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid motion optimization options")
	}
	if sdf != nil && opts.Dim != 2 {
		return nil, errors.Errorf("obstacle costs need a 2D configuration space, got dimension %d", opts.Dim)
	}
	mo := &MotionOptimization{
		opts:   opts,
		logger: logger,
		qInit:  mat.NewVecDense(opts.Dim, append([]float64(nil), opts.QInit...)),
		qGoal:  mat.NewVecDense(opts.Dim, append([]float64(nil), opts.QGoal...)),
	}

	var err error
	mo.smoothness, err = mo.newNetwork()
	if err != nil {
		return nil, err
	}
	if err := mo.addSmoothnessTerms(mo.smoothness); err != nil {
		return nil, err
	}

	network, err := mo.newNetwork()
	if err != nil {
		return nil, err
	}
	if err := mo.addSmoothnessTerms(network); err != nil {
		return nil, err
	}
	if err := mo.addObstacleTerms(network, sdf); err != nil {
		return nil, err
	}
	if err := mo.addBarrierTerms(network); err != nil {
		return nil, err
	}
	if err := mo.addTerminalTerms(network); err != nil {
		return nil, err
	}

	var clamped []int
	if opts.Boundary == ClampBoundary {
		for i := 0; i < opts.Dim; i++ {
			clamped = append(clamped, (opts.T-1)*opts.Dim+i)
		}
	}
	mo.objective, err = NewTrajectoryObjective(network, mo.qInit, clamped...)
	if err != nil {
		return nil, err
	}
	return mo, nil
}

// newNetwork returns an empty network over the T+2 waypoints.
func (mo *MotionOptimization) newNetwork() (*cliques.FunctionNetwork, error) {
	return cliques.NewFunctionNetwork(
		(mo.opts.T+2)*mo.opts.Dim, mo.opts.Dim, cliques.WithParallelism(mo.opts.Parallelism))
}

// addSmoothnessTerms registers the squared velocities between every pair of consecutive waypoints
// and the squared accelerations of every clique.
func (mo *MotionOptimization) addSmoothnessTerms(network *cliques.FunctionNetwork) error {
	n, dt := mo.opts.Dim, mo.opts.Dt
	if mo.opts.VelocityScalar > 0 {
		velocity, err := costterms.NewSquaredNormVelocity(n, dt)
		if err != nil {
			return err
		}
		scaled := diffmap.Scale(velocity, mo.opts.VelocityScalar)
		left, err := diffmap.NewPullback(scaled, cliques.LeftOfCliqueMap(n))
		if err != nil {
			return err
		}
		right, err := diffmap.NewPullback(scaled, cliques.RightOfCliqueMap(n))
		if err != nil {
			return err
		}
		if err := network.RegisterFunctionForAllCliques(left); err != nil {
			return err
		}
		if err := network.RegisterFunctionForLastClique(right); err != nil {
			return err
		}
	}
	if mo.opts.AccelerationScalar > 0 {
		acceleration, err := costterms.NewSquaredNormAcceleration(n, dt)
		if err != nil {
			return err
		}
		if err := network.RegisterFunctionForAllCliques(diffmap.Scale(acceleration, mo.opts.AccelerationScalar)); err != nil {
			return err
		}
	}
	return nil
}

func (mo *MotionOptimization) addObstacleTerms(network *cliques.FunctionNetwork, sdf diffmap.Map) error {
	if sdf == nil || mo.opts.ObstacleScalar == 0 {
		return nil
	}
	var potential *costterms.SimplePotential2D
	var err error
	if mo.opts.ObstacleDecay == 0 && mo.opts.ObstacleMargin == 0 {
		potential, err = costterms.NewSimplePotential2D(sdf)
	} else {
		decay := mo.opts.ObstacleDecay
		if decay == 0 {
			decay = costterms.SimplePotentialAlpha
		}
		potential, err = costterms.NewCostGridPotential2D(sdf, decay, mo.opts.ObstacleMargin, 0)
	}
	if err != nil {
		return errors.Wrap(err, "obstacle potential")
	}
	onCenter, err := diffmap.NewPullback(diffmap.Scale(potential, mo.opts.ObstacleScalar), cliques.CenterOfCliqueMap(mo.opts.Dim))
	if err != nil {
		return err
	}
	return network.RegisterFunctionForAllCliques(onCenter)
}

func (mo *MotionOptimization) addBarrierTerms(network *cliques.FunctionNetwork) error {
	if !mo.opts.HasBounds() || mo.opts.BarrierScalar == 0 {
		return nil
	}
	barrier, err := costterms.NewBoundBarrier(
		mat.NewVecDense(mo.opts.Dim, append([]float64(nil), mo.opts.Lower...)),
		mat.NewVecDense(mo.opts.Dim, append([]float64(nil), mo.opts.Upper...)),
		costterms.WithBarrierScale(mo.opts.BarrierScalar),
	)
	if err != nil {
		return err
	}
	onCenter, err := diffmap.NewPullback(barrier, cliques.CenterOfCliqueMap(mo.opts.Dim))
	if err != nil {
		return err
	}
	return network.RegisterFunctionForAllCliques(onCenter)
}

// addTerminalTerms pulls q_T towards q_goal. q_T is the center of the last clique.
func (mo *MotionOptimization) addTerminalTerms(network *cliques.FunctionNetwork) error {
	if mo.opts.Boundary != PenaltyBoundary || mo.opts.TerminalScalar == 0 {
		return nil
	}
	terminal := diffmap.Scale(diffmap.SquaredNorm(mo.qGoal), mo.opts.TerminalScalar)
	onCenter, err := diffmap.NewPullback(terminal, cliques.CenterOfCliqueMap(mo.opts.Dim))
	if err != nil {
		return err
	}
	return network.RegisterFunctionForLastClique(onCenter)
}

// Objective returns the cost of the active segment.
func (mo *MotionOptimization) Objective() *TrajectoryObjective { return mo.objective }

// Options returns the options the objective was built from.
func (mo *MotionOptimization) Options() *Options { return mo.opts }

func (mo *MotionOptimization) checkTrajectory(traj *trajectory.Trajectory) error {
	if traj.T() != mo.opts.T || traj.N() != mo.opts.Dim {
		return errors.Wrapf(trajectory.ErrShape, "trajectory has T=%d and n=%d, problem has T=%d and n=%d",
			traj.T(), traj.N(), mo.opts.T, mo.opts.Dim)
	}
	return nil
}

// Cost returns the full objective of traj, including its q_0 as stored.
func (mo *MotionOptimization) Cost(traj *trajectory.Trajectory) (float64, error) {
	if err := mo.checkTrajectory(traj); err != nil {
		return 0, err
	}
	return diffmap.Value(mo.objective.Network(), traj.X()), nil
}

// SmoothnessCost returns the velocity and acceleration terms of traj only.
func (mo *MotionOptimization) SmoothnessCost(traj *trajectory.Trajectory) (float64, error) {
	if err := mo.checkTrajectory(traj); err != nil {
		return 0, err
	}
	return diffmap.Value(mo.smoothness, traj.X()), nil
}

// InitialTrajectory returns the straight line from q_init to q_goal.
func (mo *MotionOptimization) InitialTrajectory() (*trajectory.Trajectory, error) {
	return trajectory.LinearInterpolation(mo.qInit, mo.qGoal, mo.opts.T)
}
