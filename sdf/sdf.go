// Package sdf provides planar signed distance fields usable as inputs to the obstacle potentials.
// Every field is a diffmap.Map from R² to R; negative values are inside an obstacle.
package sdf

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func point(x mat.Vector) r2.Point {
	return r2.Point{X: x.AtVec(0), Y: x.AtVec(1)}
}

// Circle is the signed distance to a disc.
type Circle struct {
	Center r2.Point
	Radius float64
}

// NewCircle returns a disc of the given radius.
func NewCircle(center r2.Point, radius float64) (*Circle, error) {
	if radius <= 0 {
		return nil, errors.Errorf("circle radius must be positive, got %g", radius)
	}
	return &Circle{Center: center, Radius: radius}, nil
}

// InputDimension is always 2.
func (c *Circle) InputDimension() int { return 2 }

// OutputDimension is always 1.
func (c *Circle) OutputDimension() int { return 1 }

// Distance returns |p − center| − radius.
func (c *Circle) Distance(p r2.Point) float64 {
	return p.Sub(c.Center).Norm() - c.Radius
}

// Forward returns the signed distance at x.
func (c *Circle) Forward(x mat.Vector) *mat.VecDense {
	return mat.NewVecDense(1, []float64{c.Distance(point(x))})
}

// Jacobian returns the outward unit normal. It is zero at the center.
func (c *Circle) Jacobian(x mat.Vector) *mat.Dense {
	u := point(x).Sub(c.Center)
	if u.Norm() == 0 {
		return mat.NewDense(1, 2, nil)
	}
	n := u.Normalize()
	return mat.NewDense(1, 2, []float64{n.X, n.Y})
}

// Hessian returns (I − n·nᵀ)/|x − center|.
func (c *Circle) Hessian(x mat.Vector) *mat.SymDense {
	u := point(x).Sub(c.Center)
	d := u.Norm()
	if d == 0 {
		return mat.NewSymDense(2, nil)
	}
	n := u.Normalize()
	return mat.NewSymDense(2, []float64{
		(1 - n.X*n.X) / d, -n.X * n.Y / d,
		-n.X * n.Y / d, (1 - n.Y*n.Y) / d,
	})
}

// Workspace is the union of a set of circles: its field is the minimum over their fields.
type Workspace struct {
	circles []*Circle
}

// NewWorkspace needs at least one obstacle.
func NewWorkspace(circles ...*Circle) (*Workspace, error) {
	if len(circles) == 0 {
		return nil, errors.New("workspace needs at least one obstacle")
	}
	return &Workspace{circles: append([]*Circle(nil), circles...)}, nil
}

// Circles returns the obstacles of the workspace.
func (w *Workspace) Circles() []*Circle {
	return append([]*Circle(nil), w.circles...)
}

// InputDimension is always 2.
func (w *Workspace) InputDimension() int { return 2 }

// OutputDimension is always 1.
func (w *Workspace) OutputDimension() int { return 1 }

func (w *Workspace) closest(x mat.Vector) *Circle {
	p := point(x)
	best, bestDist := w.circles[0], math.Inf(1)
	for _, c := range w.circles {
		if d := c.Distance(p); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// Forward returns the distance to the closest obstacle.
func (w *Workspace) Forward(x mat.Vector) *mat.VecDense { return w.closest(x).Forward(x) }

// Jacobian returns the jacobian of the closest obstacle's field.
func (w *Workspace) Jacobian(x mat.Vector) *mat.Dense { return w.closest(x).Jacobian(x) }

// Hessian returns the hessian of the closest obstacle's field.
func (w *Workspace) Hessian(x mat.Vector) *mat.SymDense { return w.closest(x).Hessian(x) }
