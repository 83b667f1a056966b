package costterms

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/trajopt/diffmap"
)

// SquaredNormDerivative is the scalar cost ‖D(c)‖² of a linear derivative operator D applied to
// a clique c. Its hessian 2·AᵀA is constant and computed once.
type SquaredNormDerivative struct {
	derivative diffmap.Linear
	a          *mat.Dense
	hessian    *mat.SymDense
}

// NewSquaredNormDerivative wraps the derivative operator d.
func NewSquaredNormDerivative(d diffmap.Linear) *SquaredNormDerivative {
	a := d.Matrix()
	var h mat.SymDense
	h.SymOuterK(2, a.T())
	return &SquaredNormDerivative{derivative: d, a: a, hessian: &h}
}

// NewSquaredNormVelocity returns ‖(x_{t+1} − x_t)/dt‖² on two-waypoint cliques.
func NewSquaredNormVelocity(dim int, dt float64) (*SquaredNormDerivative, error) {
	d, err := NewFiniteDifferencesVelocity(dim, dt)
	if err != nil {
		return nil, err
	}
	return NewSquaredNormDerivative(d), nil
}

// NewSquaredNormAcceleration returns ‖(x_{t+1} + x_{t−1} − 2x_t)/dt²‖² on three-waypoint cliques.
func NewSquaredNormAcceleration(dim int, dt float64) (*SquaredNormDerivative, error) {
	d, err := NewFiniteDifferencesAcceleration(dim, dt)
	if err != nil {
		return nil, err
	}
	return NewSquaredNormDerivative(d), nil
}

// Derivative returns the wrapped operator.
func (s *SquaredNormDerivative) Derivative() diffmap.Linear { return s.derivative }

// InputDimension returns the clique size the operator expects.
func (s *SquaredNormDerivative) InputDimension() int { return s.derivative.InputDimension() }

// OutputDimension is always 1.
func (s *SquaredNormDerivative) OutputDimension() int { return 1 }

// Forward returns ‖D(c)‖².
func (s *SquaredNormDerivative) Forward(x mat.Vector) *mat.VecDense {
	v := s.derivative.Forward(x)
	return mat.NewVecDense(1, []float64{mat.Dot(v, v)})
}

// Jacobian returns 2·D(c)ᵀ·A.
func (s *SquaredNormDerivative) Jacobian(x mat.Vector) *mat.Dense {
	v := s.derivative.Forward(x)
	g := mat.NewVecDense(s.InputDimension(), nil)
	g.MulVec(s.a.T(), v)
	g.ScaleVec(2, g)
	return mat.NewDense(1, g.Len(), g.RawVector().Data)
}

// Hessian returns 2·AᵀA.
func (s *SquaredNormDerivative) Hessian(mat.Vector) *mat.SymDense {
	h := mat.NewSymDense(s.InputDimension(), nil)
	h.CopySym(s.hessian)
	return h
}
