// Package diffmap defines differentiable maps between real vector spaces and the combinators
// used to assemble cost functions out of them. Every map exposes its value, its jacobian and,
// for scalar valued maps, its hessian; the three must agree with each other under finite
// differences (see CheckJacobian and CheckHessian).
package diffmap

import (
	"gonum.org/v1/gonum/mat"
)

// Map is a differentiable map f: R^n -> R^m.
//
// Implementations are pure functions of their input given their parameters: they must not
// retain or mutate x, and every returned value is owned by the caller.
type Map interface {
	// InputDimension returns n.
	InputDimension() int
	// OutputDimension returns m.
	OutputDimension() int
	// Forward evaluates f(x), a vector of length m.
	Forward(x mat.Vector) *mat.VecDense
	// Jacobian returns the m×n matrix of partial derivatives at x.
	Jacobian(x mat.Vector) *mat.Dense
	// Hessian returns the n×n matrix of second derivatives at x. It is only defined when m is 1;
	// vector valued maps may return nil or an approximation they document.
	Hessian(x mat.Vector) *mat.SymDense
}

// Linear is implemented by maps whose jacobian does not depend on the input, i.e.
// f(x) = A·x + b.
type Linear interface {
	Map
	// Matrix returns a copy of A.
	Matrix() *mat.Dense
}

// Value evaluates a scalar map.
func Value(f Map, x mat.Vector) float64 {
	return f.Forward(x).AtVec(0)
}

// Gradient returns the gradient of a scalar map, the transpose of its single jacobian row.
func Gradient(f Map, x mat.Vector) *mat.VecDense {
	return mat.VecDenseCopyOf(f.Jacobian(x).RowView(0))
}

// symmetrize returns (a + aᵀ)/2 as a SymDense. a must be square.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

func eye(n int) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	return a
}
