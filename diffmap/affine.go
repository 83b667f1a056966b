package diffmap

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// AffineMap is the map x ↦ A·x + b. Its jacobian is A everywhere and its hessian is zero.
type AffineMap struct {
	a *mat.Dense
	b *mat.VecDense
}

// NewAffineMap copies a and b into a new AffineMap. A nil b is treated as the zero vector.
func NewAffineMap(a mat.Matrix, b mat.Vector) (*AffineMap, error) {
	m, _ := a.Dims()
	bv := mat.NewVecDense(m, nil)
	if b != nil {
		if b.Len() != m {
			return nil, NewDimensionMismatchError("affine offset length", m, b.Len())
		}
		bv.CopyVec(b)
	}
	return &AffineMap{a: mat.DenseCopyOf(a), b: bv}, nil
}

// NewLinearMap returns the map x ↦ A·x.
func NewLinearMap(a mat.Matrix) *AffineMap {
	m, _ := a.Dims()
	return &AffineMap{a: mat.DenseCopyOf(a), b: mat.NewVecDense(m, nil)}
}

// Identity returns the identity map on R^n.
func Identity(n int) *AffineMap {
	return &AffineMap{a: eye(n), b: mat.NewVecDense(n, nil)}
}

// RangeSubspace returns the linear map from R^n selecting the given coordinates, in order.
func RangeSubspace(n int, indices []int) (*AffineMap, error) {
	if len(indices) == 0 {
		return nil, errors.New("range subspace needs at least one index")
	}
	a := mat.NewDense(len(indices), n, nil)
	for row, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, errors.Errorf("range subspace index %d outside [0, %d)", idx, n)
		}
		a.Set(row, idx, 1)
	}
	return NewLinearMap(a), nil
}

// InputDimension returns the number of columns of A.
func (f *AffineMap) InputDimension() int {
	_, n := f.a.Dims()
	return n
}

// OutputDimension returns the number of rows of A.
func (f *AffineMap) OutputDimension() int {
	m, _ := f.a.Dims()
	return m
}

// Forward returns A·x + b.
func (f *AffineMap) Forward(x mat.Vector) *mat.VecDense {
	y := mat.NewVecDense(f.OutputDimension(), nil)
	y.MulVec(f.a, x)
	y.AddVec(y, f.b)
	return y
}

// Jacobian returns a copy of A.
func (f *AffineMap) Jacobian(mat.Vector) *mat.Dense {
	return mat.DenseCopyOf(f.a)
}

// Hessian returns the zero matrix.
func (f *AffineMap) Hessian(mat.Vector) *mat.SymDense {
	n := f.InputDimension()
	return mat.NewSymDense(n, nil)
}

// Matrix returns a copy of A.
func (f *AffineMap) Matrix() *mat.Dense {
	return mat.DenseCopyOf(f.a)
}

// Offset returns a copy of b.
func (f *AffineMap) Offset() *mat.VecDense {
	return mat.VecDenseCopyOf(f.b)
}
