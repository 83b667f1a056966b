package diffmap

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// FiniteDifferenceStep is the central difference step used by the derivative checkers.
const FiniteDifferenceStep = 1e-5

// ErrDerivativeMismatch is wrapped by the checkers when an analytic derivative disagrees with
// its finite-difference estimate.
var ErrDerivativeMismatch = errors.New("analytic derivative does not match finite differences")

// NumericalJacobian estimates J_f(x) with central differences.
func NumericalJacobian(f Map, x mat.Vector) *mat.Dense {
	n, m := f.InputDimension(), f.OutputDimension()
	dst := mat.NewDense(m, n, nil)
	fd.Jacobian(dst, func(y, xs []float64) {
		copyVec(y, f.Forward(mat.NewVecDense(len(xs), xs)))
	}, toSlice(x), &fd.JacobianSettings{Formula: fd.Central, Step: FiniteDifferenceStep})
	return dst
}

// NumericalHessian estimates H_f(x) of a scalar map as the central-difference jacobian of its
// analytic gradient.
func NumericalHessian(f Map, x mat.Vector) *mat.SymDense {
	n := f.InputDimension()
	dst := mat.NewDense(n, n, nil)
	fd.Jacobian(dst, func(g, xs []float64) {
		copy(g, f.Jacobian(mat.NewVecDense(len(xs), xs)).RawRowView(0))
	}, toSlice(x), &fd.JacobianSettings{Formula: fd.Central, Step: FiniteDifferenceStep})
	return symmetrize(dst)
}

// CheckJacobian compares the analytic jacobian of f at x with NumericalJacobian. Entries a and b
// agree when |a−b| ≤ tol·max(1, |b|).
func CheckJacobian(f Map, x mat.Vector, tol float64) error {
	return compare("jacobian", f.Jacobian(x), NumericalJacobian(f, x), tol)
}

// CheckHessian compares the analytic hessian of a scalar map f at x with NumericalHessian.
func CheckHessian(f Map, x mat.Vector, tol float64) error {
	if f.OutputDimension() != 1 {
		return NewDimensionMismatchError("hessian check output dimension", 1, f.OutputDimension())
	}
	h := f.Hessian(x)
	if h == nil {
		return errors.New("map has no hessian")
	}
	return compare("hessian", h, NumericalHessian(f, x), tol)
}

// RandomPoint draws a point uniformly from the box [lo, hi]^n.
func RandomPoint(rnd *rand.Rand, n int, lo, hi float64) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = lo + (hi-lo)*rnd.Float64()
	}
	return mat.NewVecDense(n, data)
}

func compare(what string, analytic, numeric mat.Matrix, tol float64) error {
	ar, ac := analytic.Dims()
	nr, nc := numeric.Dims()
	if ar != nr || ac != nc {
		return errors.Errorf("%s shape %dx%d, expected %dx%d", what, ar, ac, nr, nc)
	}
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			a, b := analytic.At(i, j), numeric.At(i, j)
			if math.Abs(a-b) > tol*math.Max(1, math.Abs(b)) {
				return errors.Wrapf(ErrDerivativeMismatch, "%s[%d,%d] = %g, finite differences give %g", what, i, j, a, b)
			}
		}
	}
	return nil
}

func toSlice(x mat.Vector) []float64 {
	out := make([]float64, x.Len())
	copyVec(out, x)
	return out
}

func copyVec(dst []float64, v mat.Vector) {
	for i := range dst {
		dst[i] = v.AtVec(i)
	}
}
