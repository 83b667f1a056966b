package trajectory

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ContinuousTrajectory evaluates a trajectory as the piecewise-linear curve through q_0 … q_T,
// parameterized by s in [0, 1].
type ContinuousTrajectory struct {
	*Trajectory
}

// NewContinuousTrajectory returns a zero trajectory with T steps of dimension n.
func NewContinuousTrajectory(t, n int) (*ContinuousTrajectory, error) {
	traj, err := NewTrajectory(t, n)
	if err != nil {
		return nil, err
	}
	return &ContinuousTrajectory{traj}, nil
}

// ConfigurationAtParameter interpolates between the two waypoints around s·T. s is clamped to
// [0, 1].
func (c *ContinuousTrajectory) ConfigurationAtParameter(s float64) *mat.VecDense {
	s = math.Max(0, math.Min(1, s))
	alpha := s * float64(c.t)
	i := min(int(math.Floor(alpha)), c.t-1)
	frac := alpha - float64(i)

	q := mat.NewVecDense(c.n, nil)
	q.ScaleVec(1-frac, c.waypoint(i))
	q.AddScaledVec(q, frac, c.waypoint(i+1))
	return q
}

// Length returns the sum of distances between consecutive waypoints q_0 … q_T.
func (c *ContinuousTrajectory) Length() float64 {
	var length float64
	var d mat.VecDense
	for i := 0; i < c.t; i++ {
		d.SubVec(c.waypoint(i+1), c.waypoint(i))
		length += mat.Norm(&d, 2)
	}
	return length
}
