// Package trajectory holds discretized trajectories: T+2 waypoints of dimension n stored in one
// flat buffer, with windowed access to the three-waypoint cliques cost terms are evaluated on.
package trajectory

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrIndexOutOfRange is wrapped when a waypoint or clique index is outside its valid range.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrShape is wrapped when a buffer does not have the length the trajectory expects.
	ErrShape = errors.New("wrong shape")
)

// NewIndexOutOfRangeError reports index outside [lo, hi].
func NewIndexOutOfRangeError(what string, index, lo, hi int) error {
	return errors.Wrapf(ErrIndexOutOfRange, "%s %d not in [%d, %d]", what, index, lo, hi)
}

// NewShapeError reports a buffer of the wrong length.
func NewShapeError(what string, expected, actual int) error {
	return errors.Wrapf(ErrShape, "%s: expected length %d but got %d", what, expected, actual)
}

// Trajectory is a sequence of T+2 waypoints q_0 … q_{T+1} of dimension n.
//
// Waypoint i occupies x[n·i, n·(i+1)). q_0 is the start configuration, q_T the final one and
// q_{T+1} a padding waypoint the finite differences at the end of the horizon read from. Clique
// i, for 1 ≤ i ≤ T, is the concatenation of q_{i−1}, q_i and q_{i+1}.
type Trajectory struct {
	t int
	n int
	x *mat.VecDense
}

// NewTrajectory returns a zero trajectory with T steps of dimension n.
func NewTrajectory(t, n int) (*Trajectory, error) {
	if t <= 0 {
		return nil, errors.Errorf("trajectory needs at least one step, got T=%d", t)
	}
	if n <= 0 {
		return nil, errors.Errorf("configuration dimension must be positive, got %d", n)
	}
	return &Trajectory{t: t, n: n, x: mat.NewVecDense(n*(t+2), nil)}, nil
}

// NewFromBuffer builds a trajectory of dimension n from a full buffer of T+2 waypoints.
func NewFromBuffer(n int, x mat.Vector) (*Trajectory, error) {
	if n <= 0 {
		return nil, errors.Errorf("configuration dimension must be positive, got %d", n)
	}
	if x.Len()%n != 0 {
		return nil, errors.Wrapf(ErrShape, "trajectory buffer length %d is not a multiple of %d", x.Len(), n)
	}
	traj, err := NewTrajectory(x.Len()/n-2, n)
	if err != nil {
		return nil, err
	}
	traj.x.CopyVec(x)
	return traj, nil
}

// NewFromActiveSegment prepends qInit to the free waypoints q_1 … q_{T+1}.
func NewFromActiveSegment(qInit, active mat.Vector) (*Trajectory, error) {
	n := qInit.Len()
	if active.Len()%n != 0 {
		return nil, errors.Wrapf(ErrShape, "active segment length %d is not a multiple of %d", active.Len(), n)
	}
	traj, err := NewTrajectory(active.Len()/n-1, n)
	if err != nil {
		return nil, err
	}
	traj.x.SliceVec(0, n).(*mat.VecDense).CopyVec(qInit)
	traj.x.SliceVec(n, traj.x.Len()).(*mat.VecDense).CopyVec(active)
	return traj, nil
}

// LinearInterpolation spaces the waypoints uniformly on the line from qInit to qGoal: q_i sits at
// s = i/T, so q_T is qGoal and the padding waypoint continues past it at the same spacing. Every
// velocity clique is then equal and every acceleration is zero.
func LinearInterpolation(qInit, qGoal mat.Vector, t int) (*Trajectory, error) {
	if qInit.Len() != qGoal.Len() {
		return nil, NewShapeError("goal configuration", qInit.Len(), qGoal.Len())
	}
	traj, err := NewTrajectory(t, qInit.Len())
	if err != nil {
		return nil, err
	}
	var delta mat.VecDense
	delta.SubVec(qGoal, qInit)
	for i := 0; i <= t+1; i++ {
		q := traj.waypoint(i)
		q.AddScaledVec(qInit, float64(i)/float64(t), &delta)
	}
	// Exact endpoint regardless of rounding.
	traj.waypoint(t).CopyVec(qGoal)
	return traj, nil
}

// waypoint returns a view aliasing the buffer. It is only used internally; callers go through
// Configuration and SetConfiguration.
func (traj *Trajectory) waypoint(i int) *mat.VecDense {
	return traj.x.SliceVec(traj.n*i, traj.n*(i+1)).(*mat.VecDense)
}

// T returns the number of steps.
func (traj *Trajectory) T() int { return traj.t }

// N returns the configuration dimension.
func (traj *Trajectory) N() int { return traj.n }

// NumWaypoints returns T+2.
func (traj *Trajectory) NumWaypoints() int { return traj.t + 2 }

// Len returns the length of the flat buffer, n·(T+2).
func (traj *Trajectory) Len() int { return traj.x.Len() }

// Configuration returns a copy of waypoint i, 0 ≤ i ≤ T+1.
func (traj *Trajectory) Configuration(i int) (*mat.VecDense, error) {
	if i < 0 || i > traj.t+1 {
		return nil, NewIndexOutOfRangeError("waypoint", i, 0, traj.t+1)
	}
	return mat.VecDenseCopyOf(traj.waypoint(i)), nil
}

// SetConfiguration overwrites waypoint i with q.
func (traj *Trajectory) SetConfiguration(i int, q mat.Vector) error {
	if i < 0 || i > traj.t+1 {
		return NewIndexOutOfRangeError("waypoint", i, 0, traj.t+1)
	}
	if q.Len() != traj.n {
		return NewShapeError("configuration", traj.n, q.Len())
	}
	traj.waypoint(i).CopyVec(q)
	return nil
}

// InitialConfiguration returns a copy of q_0.
func (traj *Trajectory) InitialConfiguration() *mat.VecDense {
	return mat.VecDenseCopyOf(traj.waypoint(0))
}

// FinalConfiguration returns a copy of q_T.
func (traj *Trajectory) FinalConfiguration() *mat.VecDense {
	return mat.VecDenseCopyOf(traj.waypoint(traj.t))
}

// Clique returns a copy of q_{i−1}, q_i, q_{i+1} for 1 ≤ i ≤ T.
func (traj *Trajectory) Clique(i int) (*mat.VecDense, error) {
	if i < 1 || i > traj.t {
		return nil, NewIndexOutOfRangeError("clique", i, 1, traj.t)
	}
	return mat.VecDenseCopyOf(traj.x.SliceVec(traj.n*(i-1), traj.n*(i+2))), nil
}

// Set replaces the whole buffer.
func (traj *Trajectory) Set(x mat.Vector) error {
	if x.Len() != traj.x.Len() {
		return NewShapeError("trajectory buffer", traj.x.Len(), x.Len())
	}
	traj.x.CopyVec(x)
	return nil
}

// X returns a copy of the whole buffer.
func (traj *Trajectory) X() *mat.VecDense {
	return mat.VecDenseCopyOf(traj.x)
}

// ActiveSegment returns a copy of the free waypoints q_1 … q_{T+1}.
func (traj *Trajectory) ActiveSegment() *mat.VecDense {
	return mat.VecDenseCopyOf(traj.x.SliceVec(traj.n, traj.x.Len()))
}

// SetActiveSegment overwrites q_1 … q_{T+1}, leaving q_0 untouched.
func (traj *Trajectory) SetActiveSegment(active mat.Vector) error {
	if active.Len() != traj.n*(traj.t+1) {
		return NewShapeError("active segment", traj.n*(traj.t+1), active.Len())
	}
	traj.x.SliceVec(traj.n, traj.x.Len()).(*mat.VecDense).CopyVec(active)
	return nil
}

// Waypoints returns copies of all T+2 waypoints as plain slices.
func (traj *Trajectory) Waypoints() [][]float64 {
	out := make([][]float64, traj.NumWaypoints())
	for i := range out {
		out[i] = append([]float64(nil), traj.waypoint(i).RawVector().Data[:traj.n]...)
	}
	return out
}

// Copy returns a deep copy.
func (traj *Trajectory) Copy() *Trajectory {
	return &Trajectory{t: traj.t, n: traj.n, x: mat.VecDenseCopyOf(traj.x)}
}

func (traj *Trajectory) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, " - n : %d\n", traj.n)
	fmt.Fprintf(&sb, " - T : %d\n", traj.t)
	fmt.Fprintf(&sb, " - x : %v", traj.x.RawVector().Data)
	return sb.String()
}
